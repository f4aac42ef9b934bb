// Package retrieval builds typed chunks from schema snapshots and
// defines the VectorIndex/Embedder seams the core consumes for staged
// schema retrieval. RBAC is enforced as a hard pre-filter here, never
// left to the vector backend: authoritative schema is always re-resolved
// from the schema snapshot store afterward, so these chunks are hints,
// not authority.
package retrieval

import (
	"sort"

	"github.com/nl2sql-engine/core/pkg/models"
)

// BuildChunks emits the four typed chunk kinds from a schema snapshot:
// one Datasource chunk, one Table chunk per table, one Column chunk per
// column, and one Relationship chunk per foreign key. Column lists in
// table chunks are sorted by name for deterministic payloads.
func BuildChunks(dsID string, snapshot models.SchemaSnapshot, sampleQuestions []string) ([]models.Chunk, error) {
	var out []models.Chunk

	dsChunk := models.Chunk{
		Kind:            models.ChunkKindDatasource,
		DatasourceID:    dsID,
		SchemaVersion:   snapshot.Version,
		Description:     describeDatasource(dsID, snapshot),
		SampleQuestions: sampleQuestions,
	}
	if err := dsChunk.AssignID(); err != nil {
		return nil, err
	}
	out = append(out, dsChunk)

	for _, tableName := range snapshot.Contract.SortedTableNames() {
		table := snapshot.Contract.Tables[tableName]
		columns := table.SortedColumnNames()

		tableChunk := models.Chunk{
			Kind:          models.ChunkKindTable,
			DatasourceID:  dsID,
			SchemaVersion: snapshot.Version,
			Table:         tableName,
			PrimaryKey:    table.PrimaryKey,
			Columns:       columns,
			FKSummaries:   fkSummaries(table.ForeignKeys),
			Text:          snapshot.Metadata.TableDescriptions[tableName],
		}
		if err := tableChunk.AssignID(); err != nil {
			return nil, err
		}
		out = append(out, tableChunk)

		for _, colName := range columns {
			col := table.Columns[colName]
			var stats string
			if col.Stats != nil {
				stats = col.Stats.Description
			}
			colChunk := models.Chunk{
				Kind:          models.ChunkKindColumn,
				DatasourceID:  dsID,
				SchemaVersion: snapshot.Version,
				Table:         tableName,
				Column:        colName,
				ColType:       col.Type,
				PII:           col.PII,
				Text:          stats,
			}
			if col.Stats != nil {
				colChunk.Synonyms = col.Stats.Synonyms
			}
			if err := colChunk.AssignID(); err != nil {
				return nil, err
			}
			out = append(out, colChunk)
		}

		for _, fk := range table.ForeignKeys {
			relChunk := models.Chunk{
				Kind:          models.ChunkKindRelationship,
				DatasourceID:  dsID,
				SchemaVersion: snapshot.Version,
				FromTable:     tableName,
				ToTable:       fk.RefTable,
				JoinColumns:   joinPairs(fk.Columns, fk.RefColumns),
				Cardinality:   "many_to_one",
			}
			if err := relChunk.AssignID(); err != nil {
				return nil, err
			}
			out = append(out, relChunk)
		}
	}

	return out, nil
}

func describeDatasource(dsID string, snapshot models.SchemaSnapshot) string {
	names := snapshot.Contract.SortedTableNames()
	sort.Strings(names)
	return "datasource " + dsID + " with tables: " + joinComma(names)
}

func fkSummaries(fks []models.ForeignKey) []string {
	out := make([]string, 0, len(fks))
	for _, fk := range fks {
		out = append(out, joinComma(fk.Columns)+" -> "+fk.RefTable+"."+joinComma(fk.RefColumns))
	}
	return out
}

func joinPairs(left, right []string) []string {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, left[i]+"="+right[i])
	}
	return out
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
