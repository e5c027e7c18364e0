package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

func startSpan(ctx context.Context, col, op, name string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("repo."+col).Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "mongodb"),
		attribute.String("db.operation", op),
		attribute.String("db.mongodb.collection", col),
	)
	return ctx, span
}

func byID(id string) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid}, true
}

// InterviewRepo persists interviews.
type InterviewRepo struct{ col *mongo.Collection }

// Create inserts iv, assigning an id when empty.
func (r *InterviewRepo) Create(ctx domain.Context, iv domain.Interview) (string, error) {
	ctx, span := startSpan(ctx, colInterviews, "insert", "interviews.Create")
	defer span.End()
	if iv.ID == "" {
		iv.ID = domain.NewID()
	}
	doc, err := toInterviewDoc(iv)
	if err != nil {
		return "", fmt.Errorf("%w: interview id %q", domain.ErrInvalidArgument, iv.ID)
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%w: interview %s exists", domain.ErrConflict, iv.ID)
		}
		span.RecordError(err)
		return "", fmt.Errorf("op=interview.create: %w", err)
	}
	return iv.ID, nil
}

// Get loads an interview by id.
func (r *InterviewRepo) Get(ctx domain.Context, id string) (domain.Interview, error) {
	ctx, span := startSpan(ctx, colInterviews, "find", "interviews.Get")
	defer span.End()
	filter, ok := byID(id)
	if !ok {
		return domain.Interview{}, domain.ErrNotFound
	}
	var d interviewDoc
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Interview{}, domain.ErrNotFound
		}
		return domain.Interview{}, fmt.Errorf("op=interview.get: %w", err)
	}
	return d.domain(), nil
}

// Update replaces the stored document.
func (r *InterviewRepo) Update(ctx domain.Context, iv domain.Interview) error {
	ctx, span := startSpan(ctx, colInterviews, "replace", "interviews.Update")
	defer span.End()
	doc, err := toInterviewDoc(iv)
	if err != nil {
		return domain.ErrNotFound
	}
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=interview.update: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes an interview.
func (r *InterviewRepo) Delete(ctx domain.Context, id string) error {
	ctx, span := startSpan(ctx, colInterviews, "delete", "interviews.Delete")
	defer span.End()
	filter, ok := byID(id)
	if !ok {
		return domain.ErrNotFound
	}
	res, err := r.col.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("op=interview.delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByOwner lists the owner's interviews in either stored owner form,
// newest first.
func (r *InterviewRepo) ListByOwner(ctx domain.Context, ownerID string, f domain.InterviewFilter) ([]domain.Interview, error) {
	ctx, span := startSpan(ctx, colInterviews, "find", "interviews.ListByOwner")
	defer span.End()
	filter := ownerFilter(ownerID)
	if len(f.ExcludeStatus) > 0 {
		ex := make(bson.A, 0, len(f.ExcludeStatus))
		for _, s := range f.ExcludeStatus {
			ex = append(ex, string(s))
		}
		filter["status"] = bson.M{"$nin": ex}
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return r.find(ctx, "op=interview.list_by_owner", filter, opts)
}

// ListAll returns every interview.
func (r *InterviewRepo) ListAll(ctx domain.Context) ([]domain.Interview, error) {
	ctx, span := startSpan(ctx, colInterviews, "find", "interviews.ListAll")
	defer span.End()
	return r.find(ctx, "op=interview.list_all", bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (r *InterviewRepo) find(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]domain.Interview, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)
	var docs []interviewDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]domain.Interview, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.domain())
	}
	return out, nil
}

// QuestionSetRepo keeps one question set document per interview.
type QuestionSetRepo struct{ col *mongo.Collection }

// Get loads the set of an interview.
func (r *QuestionSetRepo) Get(ctx domain.Context, interviewID string) (domain.QuestionSet, error) {
	ctx, span := startSpan(ctx, colQuestionSets, "find", "question_sets.Get")
	defer span.End()
	var d questionSetDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": interviewID}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.QuestionSet{}, domain.ErrNotFound
		}
		return domain.QuestionSet{}, fmt.Errorf("op=question_set.get: %w", err)
	}
	return d.domain(), nil
}

// Replace swaps the whole document in one write.
func (r *QuestionSetRepo) Replace(ctx domain.Context, qs domain.QuestionSet) error {
	ctx, span := startSpan(ctx, colQuestionSets, "replace", "question_sets.Replace")
	defer span.End()
	if qs.ID == "" {
		qs.ID = uuid.NewString()
	}
	doc := toQuestionSetDoc(qs)
	if _, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.InterviewID}, doc, options.Replace().SetUpsert(true)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=question_set.replace: %w", err)
	}
	return nil
}

// Delete removes the set of an interview.
func (r *QuestionSetRepo) Delete(ctx domain.Context, interviewID string) error {
	ctx, span := startSpan(ctx, colQuestionSets, "delete", "question_sets.Delete")
	defer span.End()
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": interviewID}); err != nil {
		return fmt.Errorf("op=question_set.delete: %w", err)
	}
	return nil
}

// AnswerRepo stores one document per (interview, question index).
type AnswerRepo struct{ col *mongo.Collection }

// answerWrites builds one upsert per answer. Later duplicates replace earlier
// ones because the bulk write is ordered.
func answerWrites(interviewID string, answers []domain.Answer) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(answers))
	for _, a := range answers {
		doc := answerDoc{InterviewID: interviewID, QuestionIndex: a.QuestionIndex, Text: a.Text, SubmittedAt: a.SubmittedAt.UTC()}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"interviewId": interviewID, "questionIndex": a.QuestionIndex}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	return models
}

// Upsert writes every answer in one ordered bulk write.
func (r *AnswerRepo) Upsert(ctx domain.Context, interviewID string, answers []domain.Answer) error {
	ctx, span := startSpan(ctx, colAnswers, "bulk_write", "answers.Upsert")
	defer span.End()
	if len(answers) == 0 {
		return nil
	}
	span.SetAttributes(attribute.Int("answers.count", len(answers)))
	if _, err := r.col.BulkWrite(ctx, answerWrites(interviewID, answers), options.BulkWrite().SetOrdered(true)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=answer.upsert: %w", err)
	}
	return nil
}

// List returns answers ordered by question index.
func (r *AnswerRepo) List(ctx domain.Context, interviewID string) ([]domain.Answer, error) {
	ctx, span := startSpan(ctx, colAnswers, "find", "answers.List")
	defer span.End()
	cur, err := r.col.Find(ctx, bson.M{"interviewId": interviewID}, options.Find().SetSort(bson.D{{Key: "questionIndex", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("op=answer.list: %w", err)
	}
	defer cur.Close(ctx)
	var docs []answerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("op=answer.list: %w", err)
	}
	out := make([]domain.Answer, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Answer{InterviewID: d.InterviewID, QuestionIndex: d.QuestionIndex, Text: d.Text, SubmittedAt: d.SubmittedAt})
	}
	return out, nil
}

// DeleteAll removes every answer of an interview.
func (r *AnswerRepo) DeleteAll(ctx domain.Context, interviewID string) error {
	ctx, span := startSpan(ctx, colAnswers, "delete", "answers.DeleteAll")
	defer span.End()
	if _, err := r.col.DeleteMany(ctx, bson.M{"interviewId": interviewID}); err != nil {
		return fmt.Errorf("op=answer.delete_all: %w", err)
	}
	return nil
}

// PerformanceRepo keeps one record per interview.
type PerformanceRepo struct{ col *mongo.Collection }

// performanceUpdate sets the record fields and assigns an id only on insert.
func performanceUpdate(rec domain.PerformanceRecord) (bson.M, error) {
	owner, err := ownerValue(rec.Owner)
	if err != nil {
		return nil, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	newID := rec.ID
	if newID == "" {
		newID = uuid.NewString()
	}
	rec.ID = ""
	return bson.M{
		"$set": bson.M{
			"interviewId": rec.InterviewID,
			"userId":      owner,
			"createdAt":   rec.CreatedAt.UTC(),
			"record":      rec,
		},
		"$setOnInsert": bson.M{"_id": newID},
	}, nil
}

// Upsert stores rec by interview id and returns the stored id.
func (r *PerformanceRepo) Upsert(ctx domain.Context, rec domain.PerformanceRecord) (string, error) {
	ctx, span := startSpan(ctx, colPerformances, "find_one_and_update", "performances.Upsert")
	defer span.End()
	update, err := performanceUpdate(rec)
	if err != nil {
		return "", fmt.Errorf("op=performance.upsert: %w", err)
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var d performanceDoc
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"interviewId": rec.InterviewID}, update, opts).Decode(&d); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=performance.upsert: %w", err)
	}
	return d.ID, nil
}

// GetByInterview loads the record of an interview.
func (r *PerformanceRepo) GetByInterview(ctx domain.Context, interviewID string) (domain.PerformanceRecord, error) {
	ctx, span := startSpan(ctx, colPerformances, "find", "performances.GetByInterview")
	defer span.End()
	var d performanceDoc
	if err := r.col.FindOne(ctx, bson.M{"interviewId": interviewID}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.PerformanceRecord{}, domain.ErrNotFound
		}
		return domain.PerformanceRecord{}, fmt.Errorf("op=performance.get: %w", err)
	}
	return d.domain(), nil
}

// ListByOwner returns the owner's records newest first.
func (r *PerformanceRepo) ListByOwner(ctx domain.Context, ownerID string) ([]domain.PerformanceRecord, error) {
	ctx, span := startSpan(ctx, colPerformances, "find", "performances.ListByOwner")
	defer span.End()
	cur, err := r.col.Find(ctx, ownerFilter(ownerID), options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("op=performance.list_by_owner: %w", err)
	}
	defer cur.Close(ctx)
	var docs []performanceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("op=performance.list_by_owner: %w", err)
	}
	out := make([]domain.PerformanceRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.domain())
	}
	return out, nil
}

// Delete removes the record of an interview.
func (r *PerformanceRepo) Delete(ctx domain.Context, interviewID string) error {
	ctx, span := startSpan(ctx, colPerformances, "delete", "performances.Delete")
	defer span.End()
	if _, err := r.col.DeleteOne(ctx, bson.M{"interviewId": interviewID}); err != nil {
		return fmt.Errorf("op=performance.delete: %w", err)
	}
	return nil
}
