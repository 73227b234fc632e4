package doctors

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/carenav/carenav/engine/domain"
	"github.com/carenav/carenav/pkg/repo"
)

const doctorLabel = "Doctor"

type nodeRepo interface {
	Query(ctx context.Context, cypher string, params map[string]any) ([]domain.Doctor, error)
	Replace(ctx context.Context, items []domain.Doctor) (int, error)
}

// Neo4jStore reads doctors stored as (:Doctor) nodes. Natural order is the
// seq property written at load time.
type Neo4jStore struct {
	nodes nodeRepo
}

// NewNeo4jStore builds a store over driver.
func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{
		nodes: repo.NewNodes(driver, doctorLabel,
			repo.Codec[domain.Doctor]{Encode: doctorProps, Decode: doctorFromRecord},
			repo.WithDatabase(database)),
	}
}

func (s *Neo4jStore) FetchAll(ctx context.Context) ([]domain.Doctor, error) {
	out, err := s.nodes.Query(ctx, `MATCH (d:Doctor) RETURN d ORDER BY d.seq`, nil)
	if err != nil {
		return nil, domain.Wrap("doctors.FetchAll", domain.ErrStore, err)
	}
	return out, nil
}

func (s *Neo4jStore) FetchBySpecialty(ctx context.Context, needle string, limit int) ([]domain.Doctor, error) {
	if limit <= 0 {
		limit = domain.DefaultLookupLimit
	}
	out, err := s.nodes.Query(ctx, `MATCH (d:Doctor)
WHERE toLower(d.specialty) CONTAINS toLower($needle)
RETURN d ORDER BY d.experience DESC, d.seq ASC LIMIT $limit`,
		map[string]any{"needle": needle, "limit": limit})
	if err != nil {
		return nil, domain.Wrap("doctors.FetchBySpecialty", domain.ErrStore, err)
	}
	return out, nil
}

// ReplaceAll swaps the stored doctors for docs in one transaction.
func (s *Neo4jStore) ReplaceAll(ctx context.Context, docs []domain.Doctor) (int, error) {
	n, err := s.nodes.Replace(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("doctors: %w", err)
	}
	return n, nil
}

func doctorProps(d domain.Doctor) map[string]any {
	return map[string]any{
		"name":       d.Name,
		"specialty":  d.Specialty,
		"phone":      d.Phone,
		"location":   d.Location,
		"experience": int64(d.ExperienceYears),
	}
}

func doctorFromRecord(rec *neo4j.Record) (domain.Doctor, error) {
	node, isNil, err := neo4j.GetRecordValue[neo4j.Node](rec, "d")
	if err != nil {
		return domain.Doctor{}, err
	}
	if isNil {
		return domain.Doctor{}, fmt.Errorf("record has null doctor")
	}
	str := func(k string) string {
		s, _ := node.Props[k].(string)
		return s
	}
	var years int
	switch v := node.Props["experience"].(type) {
	case int64:
		years = int(v)
	case float64:
		years = int(v)
	}
	return domain.Doctor{
		Name:            str("name"),
		Specialty:       str("specialty"),
		Phone:           str("phone"),
		Location:        str("location"),
		ExperienceYears: years,
	}, nil
}
