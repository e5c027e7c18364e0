package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

type interviewDoc struct {
	ID                primitive.ObjectID `bson:"_id"`
	UserID            bson.RawValue      `bson:"userId"`
	JobTitle          string             `bson:"jobTitle"`
	JobDesc           string             `bson:"jobDesc"`
	CompanyName       string             `bson:"companyName"`
	Skills            []string           `bson:"skills"`
	ProjectContext    []string           `bson:"projectContext,omitempty"`
	WorkExDetails     []string           `bson:"workExDetails,omitempty"`
	InterviewType     string             `bson:"interviewType"`
	ExperienceLevel   string             `bson:"experienceLevel"`
	Status            string             `bson:"status"`
	QuestionsCount    int                `bson:"questionsCount"`
	EstimatedDuration int                `bson:"estimatedDuration"`
	PerformanceID     string             `bson:"performanceId,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt"`
	CompletedAt       *time.Time         `bson:"completedAt,omitempty"`
}

type questionSetDoc struct {
	InterviewID string            `bson:"_id"`
	ID          string            `bson:"setId"`
	Questions   []domain.Question `bson:"questions"`
	GeneratedAt time.Time         `bson:"generatedAt"`
	Provenance  string            `bson:"provenance"`
	Providers   map[string]int    `bson:"providers,omitempty"`
	Regenerated bool              `bson:"regenerate"`
	Degraded    bool              `bson:"degraded"`
}

type answerDoc struct {
	InterviewID   string    `bson:"interviewId"`
	QuestionIndex int       `bson:"questionIndex"`
	Text          string    `bson:"answer"`
	SubmittedAt   time.Time `bson:"timestamp"`
}

type performanceDoc struct {
	ID          string                   `bson:"_id"`
	InterviewID string                   `bson:"interviewId"`
	UserID      bson.RawValue            `bson:"userId"`
	CreatedAt   time.Time                `bson:"createdAt"`
	Record      domain.PerformanceRecord `bson:"record"`
}

// ownerValue encodes o in its stored form. Canonical owners become an
// ObjectId; legacy, empty or non-hex owners stay a string.
func ownerValue(o domain.OwnerRef) (bson.RawValue, error) {
	var v any = o.ID
	if o.ID != "" && o.Form != domain.OwnerFormString {
		if oid, err := primitive.ObjectIDFromHex(o.ID); err == nil {
			v = oid
		}
	}
	t, b, err := bson.MarshalValue(v)
	if err != nil {
		return bson.RawValue{}, err
	}
	return bson.RawValue{Type: t, Value: b}, nil
}

func ownerFrom(v bson.RawValue) domain.OwnerRef {
	switch v.Type {
	case bsontype.ObjectID:
		return domain.OwnerRef{ID: v.ObjectID().Hex(), Form: domain.OwnerFormObject}
	case bsontype.String:
		if id := v.StringValue(); id != "" {
			return domain.OwnerRef{ID: id, Form: domain.OwnerFormString}
		}
	}
	return domain.OwnerRef{}
}

// ownerFilter matches ownerID in both stored forms.
func ownerFilter(ownerID string) bson.M {
	oid, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return bson.M{"userId": ownerID}
	}
	return bson.M{"$or": bson.A{bson.M{"userId": oid}, bson.M{"userId": ownerID}}}
}

func toInterviewDoc(iv domain.Interview) (interviewDoc, error) {
	id, err := primitive.ObjectIDFromHex(iv.ID)
	if err != nil {
		return interviewDoc{}, err
	}
	owner, err := ownerValue(iv.Owner)
	if err != nil {
		return interviewDoc{}, err
	}
	return interviewDoc{
		ID:                id,
		UserID:            owner,
		JobTitle:          iv.JobTitle,
		JobDesc:           iv.JobDesc,
		CompanyName:       iv.CompanyName,
		Skills:            iv.Skills,
		ProjectContext:    iv.ProjectContext,
		WorkExDetails:     iv.WorkExDetails,
		InterviewType:     string(iv.InterviewType),
		ExperienceLevel:   iv.ExperienceLevel,
		Status:            string(iv.Status),
		QuestionsCount:    iv.QuestionsCount,
		EstimatedDuration: iv.EstimatedDuration,
		PerformanceID:     iv.PerformanceID,
		CreatedAt:         iv.CreatedAt.UTC(),
		UpdatedAt:         iv.UpdatedAt.UTC(),
		CompletedAt:       iv.CompletedAt,
	}, nil
}

func (d interviewDoc) domain() domain.Interview {
	return domain.Interview{
		ID:                d.ID.Hex(),
		Owner:             ownerFrom(d.UserID),
		JobTitle:          d.JobTitle,
		JobDesc:           d.JobDesc,
		CompanyName:       d.CompanyName,
		Skills:            d.Skills,
		ProjectContext:    d.ProjectContext,
		WorkExDetails:     d.WorkExDetails,
		InterviewType:     domain.InterviewType(d.InterviewType),
		ExperienceLevel:   d.ExperienceLevel,
		Status:            domain.InterviewStatus(d.Status),
		QuestionsCount:    d.QuestionsCount,
		EstimatedDuration: d.EstimatedDuration,
		PerformanceID:     d.PerformanceID,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		CompletedAt:       d.CompletedAt,
	}
}

func toQuestionSetDoc(qs domain.QuestionSet) questionSetDoc {
	return questionSetDoc{
		InterviewID: qs.InterviewID,
		ID:          qs.ID,
		Questions:   qs.Questions,
		GeneratedAt: qs.GeneratedAt.UTC(),
		Provenance:  string(qs.Provenance),
		Providers:   qs.Providers,
		Regenerated: qs.Regenerated,
		Degraded:    qs.Degraded,
	}
}

func (d questionSetDoc) domain() domain.QuestionSet {
	return domain.QuestionSet{
		ID:          d.ID,
		InterviewID: d.InterviewID,
		Questions:   d.Questions,
		GeneratedAt: d.GeneratedAt,
		Provenance:  domain.Provenance(d.Provenance),
		Providers:   d.Providers,
		Regenerated: d.Regenerated,
		Degraded:    d.Degraded,
	}
}

func (d performanceDoc) domain() domain.PerformanceRecord {
	rec := d.Record
	rec.ID = d.ID
	rec.InterviewID = d.InterviewID
	if owner := ownerFrom(d.UserID); owner.ID != "" {
		rec.Owner = owner
	}
	return rec
}
