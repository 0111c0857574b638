package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

var ErrNotFound = eris.New("document not found")

const MaxBatchSize = 400

type Document struct {
	Collection string
	ID         string
	Data       map[string]any
}

func (d Document) Decode(v any) error {
	b, err := json.Marshal(d.Data)
	if err != nil {
		return eris.Wrap(err, "store: marshal document")
	}
	return eris.Wrap(json.Unmarshal(b, v), "store: decode document")
}

func Encode(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode document")
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, eris.Wrap(err, "store: encode document")
	}
	return out, nil
}

type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error // merge: campos de primer nivel
	Delete(ctx context.Context, collection, id string) error
	Where(ctx context.Context, collection, field string, value any) ([]Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Collections(ctx context.Context, prefix string) ([]string, error)
	NewBatch() Batch
	Ping(ctx context.Context) error
	Close() error
}

type Batch interface {
	Set(collection, id string, data map[string]any, merge bool) error
	Delete(collection, id string) error
	Len() int
	Commit(ctx context.Context) error
}

type op struct {
	collection string
	id         string
	data       map[string]any
	merge      bool
	delete     bool
}

var ErrBatchFull = eris.New("batch is full")

type opList struct{ ops []op }

func (l *opList) add(o op) error {
	if len(l.ops) >= MaxBatchSize {
		return eris.Wrapf(ErrBatchFull, "store: batch limit %d", MaxBatchSize)
	}
	l.ops = append(l.ops, o)
	return nil
}

func (l *opList) Set(collection, id string, data map[string]any, merge bool) error {
	return l.add(op{collection: collection, id: id, data: data, merge: merge})
}

func (l *opList) Delete(collection, id string) error {
	return l.add(op{collection: collection, id: id, delete: true})
}

func (l *opList) Len() int { return len(l.ops) }

func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return fmt.Sprint(t)
	}
}
