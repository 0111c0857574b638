package prospects

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/store"
)

const docPrefix = "meta_"

func DocID(platformLeadID string) string {
	return docPrefix + strings.TrimPrefix(platformLeadID, docPrefix)
}

type Buckets struct {
	OrgID     string
	AccountID string
}

func (b Buckets) Prospects() string {
	return store.Path("orgs", b.OrgID, "adAccounts", b.AccountID, "prospects")
}

func (b Buckets) Revenues() string {
	return store.Path("orgs", b.OrgID, "adAccounts", b.AccountID, "revenues")
}

func bucketsOf(collection string) Buckets {
	parts := strings.Split(collection, "/")
	if len(parts) < 5 {
		return Buckets{}
	}
	return Buckets{OrgID: parts[1], AccountID: parts[3]}
}

type Match struct {
	Collection string
	DocID      string
	Prospect   models.Prospect
}

func (m Match) Buckets() Buckets { return bucketsOf(m.Collection) }

func ResolveIdentity(ctx context.Context, st store.Store, collections []string, keys ...string) (Match, bool, error) {
	for _, coll := range collections {
		for _, key := range keys {
			if key == "" {
				continue
			}
			m, ok, err := probe(ctx, st, coll, key)
			if err != nil || ok {
				return m, ok, err
			}
		}
	}
	return Match{}, false, nil
}

func probe(ctx context.Context, st store.Store, coll, key string) (Match, bool, error) {
	// id sintético, id crudo, luego por campo
	ids := []string{DocID(key)}
	if key != DocID(key) {
		ids = append(ids, key)
	}
	for _, id := range ids {
		doc, err := st.Get(ctx, coll, id)
		switch {
		case err == nil:
			return matchOf(*doc)
		case !eris.Is(err, store.ErrNotFound):
			return Match{}, false, eris.Wrapf(err, "prospects: probe %s/%s", coll, id)
		}
	}
	for _, field := range []string{"platformLeadId", "id"} {
		docs, err := st.Where(ctx, coll, field, key)
		if err != nil {
			return Match{}, false, eris.Wrapf(err, "prospects: probe %s by %s", coll, field)
		}
		if len(docs) > 0 {
			return matchOf(docs[0])
		}
	}
	return Match{}, false, nil
}

func matchOf(doc store.Document) (Match, bool, error) {
	var p models.Prospect
	if err := doc.Decode(&p); err != nil {
		return Match{}, false, eris.Wrapf(err, "prospects: decode %s/%s", doc.Collection, doc.ID)
	}
	if p.ID == "" {
		p.ID = doc.ID
	}
	return Match{Collection: doc.Collection, DocID: doc.ID, Prospect: p}, true, nil
}
