// Package firestore is the canonical record store: one document per token in
// the contract_analyses collection.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

const Collection = "contract_analyses"

// Credentials selects how the admin SDK authenticates. File takes precedence
// over JSON; with neither set application default credentials are used.
type Credentials struct {
	ProjectID string
	File      string
	JSON      string
}

type credentialSource int

const (
	sourceDefault credentialSource = iota
	sourceFile
	sourceJSON
)

func (c Credentials) source() credentialSource {
	switch {
	case c.File != "":
		return sourceFile
	case c.JSON != "":
		return sourceJSON
	}
	return sourceDefault
}

// Open initializes the Firebase app and returns its Firestore client.
func Open(ctx context.Context, creds Credentials) (*firestore.Client, error) {
	var opts []option.ClientOption
	switch creds.source() {
	case sourceFile:
		opts = append(opts, option.WithCredentialsFile(creds.File))
	case sourceJSON:
		opts = append(opts, option.WithCredentialsJSON([]byte(creds.JSON)))
	}
	var conf *firebase.Config
	if creds.ProjectID != "" {
		conf = &firebase.Config{ProjectID: creds.ProjectID}
	}
	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	return app.Firestore(ctx)
}

type AnalysisRepository struct {
	client *firestore.Client
	coll   string
}

func NewAnalysisRepository(client *firestore.Client) *AnalysisRepository {
	return &AnalysisRepository{client: client, coll: Collection}
}

func (r *AnalysisRepository) doc(token domain.Token) *firestore.DocumentRef {
	return r.client.Collection(r.coll).Doc(string(token))
}

func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	_, err := r.doc(a.Token).Set(ctx, a)
	return err
}

func (r *AnalysisRepository) Get(ctx context.Context, token domain.Token) (*domain.Analysis, error) {
	snap, err := r.doc(token).Get(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return decode(snap)
}

// Update runs fn inside a Firestore transaction; fn may be retried on contention.
func (r *AnalysisRepository) Update(ctx context.Context, token domain.Token, fn func(*domain.Analysis) error) error {
	ref := r.doc(token)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return notFound(err)
		}
		a, err := decode(snap)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		return tx.Set(ref, a)
	})
}

// Ping reads at most one document from the collection.
func (r *AnalysisRepository) Ping(ctx context.Context) error {
	it := r.client.Collection(r.coll).Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func decode(snap *firestore.DocumentSnapshot) (*domain.Analysis, error) {
	var a domain.Analysis
	if err := snap.DataTo(&a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", snap.Ref.ID, err)
	}
	if a.Token == "" {
		a.Token = domain.Token(snap.Ref.ID)
	}
	return &a, nil
}

func notFound(err error) error {
	if status.Code(err) == codes.NotFound {
		return domain.ErrTokenNotFound
	}
	return err
}
