// Package mongo stores interviews in MongoDB, keeping owner references in
// whichever form (ObjectId or legacy string) they were written.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// Collection names.
const (
	colInterviews   = "interviews"
	colQuestionSets = "question_sets"
	colAnswers      = "answers"
	colPerformances = "performances"
)

// Client wraps a connected driver client and the database in use.
type Client struct {
	raw *mongo.Client
	db  *mongo.Database
}

// NewClient connects to uri and selects database name.
func NewClient(ctx context.Context, uri, name string) (*Client, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	if name == "" {
		name = "interviewprep"
	}
	c, err := mongo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return &Client{raw: c, db: c.Database(name)}, nil
}

// DB returns the selected database.
func (c *Client) DB() (*mongo.Database, error) {
	if c == nil || c.db == nil {
		return nil, errors.New("mongo client not initialized")
	}
	return c.db, nil
}

// EnsureIndexes creates the lookup and uniqueness indexes.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	db, err := c.DB()
	if err != nil {
		return err
	}
	idx := []struct {
		col   string
		model mongo.IndexModel
	}{
		{colInterviews, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{colAnswers, mongo.IndexModel{
			Keys:    bson.D{{Key: "interviewId", Value: 1}, {Key: "questionIndex", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{colPerformances, mongo.IndexModel{
			Keys:    bson.D{{Key: "interviewId", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{colPerformances, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}}},
	}
	for _, i := range idx {
		if _, err := db.Collection(i.col).Indexes().CreateOne(ctx, i.model); err != nil {
			return err
		}
	}
	return nil
}

// Store wires the repositories over the client.
func (c *Client) Store() domain.Store {
	return domain.Store{
		Interviews:   &InterviewRepo{col: c.db.Collection(colInterviews)},
		QuestionSets: &QuestionSetRepo{col: c.db.Collection(colQuestionSets)},
		Answers:      &AnswerRepo{col: c.db.Collection(colAnswers)},
		Performances: &PerformanceRepo{col: c.db.Collection(colPerformances)},
		Ping:         func(ctx context.Context) error { return c.raw.Ping(ctx, readpref.Primary()) },
		Close:        c.raw.Disconnect,
	}
}
