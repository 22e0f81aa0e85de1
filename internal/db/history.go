package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/kmeans.visualiser/internal/kmeans"
)

// Lineage is one initialisation of the session and the parameters it used.
type Lineage struct {
	ID               string         `json:"lineage"`
	Method           kmeans.Method  `json:"method"`
	K                int            `json:"k"`
	N                int            `json:"n"`
	InitialCentroids []kmeans.Point `json:"initial_centroids"`
	CreatedAt        time.Time      `json:"created_at"`
}

// StepRecord is the state of a lineage after one completed step.
type StepRecord struct {
	Lineage      string         `json:"lineage"`
	Step         int            `json:"step"`
	Centroids    []kmeans.Point `json:"centroids"`
	ClusterSizes []int          `json:"cluster_sizes"`
	Inertia      float64        `json:"inertia"`
	Converged    bool           `json:"converged"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

// HistoryStats holds table row counts.
type HistoryStats struct {
	Lineages int `json:"lineages"`
	Steps    int `json:"steps"`
}

// RecordLineage inserts a lineage row. A zero CreatedAt is replaced with
// the clock's current time.
func (db *DB) RecordLineage(l Lineage) error {
	centroids, err := json.Marshal(l.InitialCentroids)
	if err != nil {
		return fmt.Errorf("failed to encode initial centroids: %w", err)
	}
	created := l.CreatedAt
	if created.IsZero() {
		created = db.clock.Now()
	}

	_, err = db.Exec(`
		INSERT INTO kmeans_lineages (lineage, method, k, n, initial_centroids, created_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, string(l.Method), l.K, l.N, string(centroids), created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record lineage %s: %w", l.ID, err)
	}
	return nil
}

// RecordStep inserts a step row. The lineage must already be recorded.
func (db *DB) RecordStep(r StepRecord) error {
	centroids, err := json.Marshal(r.Centroids)
	if err != nil {
		return fmt.Errorf("failed to encode centroids: %w", err)
	}
	sizes, err := json.Marshal(r.ClusterSizes)
	if err != nil {
		return fmt.Errorf("failed to encode cluster sizes: %w", err)
	}
	recorded := r.RecordedAt
	if recorded.IsZero() {
		recorded = db.clock.Now()
	}

	_, err = db.Exec(`
		INSERT INTO kmeans_steps (lineage, step, centroids, cluster_sizes, inertia, converged, recorded_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Lineage, r.Step, string(centroids), string(sizes), r.Inertia, r.Converged, recorded.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record step %d of lineage %s: %w", r.Step, r.Lineage, err)
	}
	return nil
}

// RecordSessionStep converts a session step result into a StepRecord and
// stores it.
func (db *DB) RecordSessionStep(lineage string, res kmeans.StepResult) error {
	return db.RecordStep(StepRecord{
		Lineage:      lineage,
		Step:         res.Step,
		Centroids:    res.Centroids,
		ClusterSizes: res.Partition.Sizes(),
		Inertia:      kmeans.Inertia(res.Centroids, res.Partition),
		Converged:    res.Converged,
	})
}

// Steps returns every recorded step of a lineage in step order.
func (db *DB) Steps(lineage string) ([]StepRecord, error) {
	rows, err := db.Query(`
		SELECT lineage, step, centroids, cluster_sizes, inertia, converged, recorded_unix_nanos
		FROM kmeans_steps
		WHERE lineage = ?
		ORDER BY step ASC`, lineage)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	steps := []StepRecord{}
	for rows.Next() {
		var (
			r                 StepRecord
			centroids, sizes  string
			recordedUnixNanos int64
		)
		if err := rows.Scan(&r.Lineage, &r.Step, &centroids, &sizes, &r.Inertia, &r.Converged, &recordedUnixNanos); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(centroids), &r.Centroids); err != nil {
			return nil, fmt.Errorf("failed to decode centroids of step %d: %w", r.Step, err)
		}
		if err := json.Unmarshal([]byte(sizes), &r.ClusterSizes); err != nil {
			return nil, fmt.Errorf("failed to decode cluster sizes of step %d: %w", r.Step, err)
		}
		r.RecordedAt = time.Unix(0, recordedUnixNanos)
		steps = append(steps, r)
	}
	return steps, rows.Err()
}

// Lineages returns up to limit lineages, newest first. A limit of zero or
// less returns all of them.
func (db *DB) Lineages(limit int) ([]Lineage, error) {
	query := `
		SELECT lineage, method, k, n, initial_centroids, created_unix_nanos
		FROM kmeans_lineages
		ORDER BY created_unix_nanos DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineages: %w", err)
	}
	defer rows.Close()

	lineages := []Lineage{}
	for rows.Next() {
		var (
			l                Lineage
			method           string
			centroids        string
			createdUnixNanos int64
		)
		if err := rows.Scan(&l.ID, &method, &l.K, &l.N, &centroids, &createdUnixNanos); err != nil {
			return nil, fmt.Errorf("failed to scan lineage: %w", err)
		}
		if err := json.Unmarshal([]byte(centroids), &l.InitialCentroids); err != nil {
			return nil, fmt.Errorf("failed to decode initial centroids of %s: %w", l.ID, err)
		}
		l.Method = kmeans.Method(method)
		l.CreatedAt = time.Unix(0, createdUnixNanos)
		lineages = append(lineages, l)
	}
	return lineages, rows.Err()
}

// Stats returns row counts for the history tables.
func (db *DB) Stats() (HistoryStats, error) {
	var s HistoryStats
	if err := db.QueryRow(`SELECT COUNT(*) FROM kmeans_lineages`).Scan(&s.Lineages); err != nil {
		return s, fmt.Errorf("failed to count lineages: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM kmeans_steps`).Scan(&s.Steps); err != nil {
		return s, fmt.Errorf("failed to count steps: %w", err)
	}
	return s, nil
}

// LineageHistory pairs a lineage with its recorded steps.
type LineageHistory struct {
	Lineage
	Steps []StepRecord `json:"steps"`
}

// Export returns every lineage, newest first, with its steps.
func (db *DB) Export() ([]LineageHistory, error) {
	lineages, err := db.Lineages(0)
	if err != nil {
		return nil, err
	}
	out := make([]LineageHistory, 0, len(lineages))
	for _, l := range lineages {
		steps, err := db.Steps(l.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, LineageHistory{Lineage: l, Steps: steps})
	}
	return out, nil
}
