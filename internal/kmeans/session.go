package kmeans

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// DefaultMaxSteps bounds Run.
const DefaultMaxSteps = 100

// State is the lifecycle state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateConverged
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateConverged:
		return "converged"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RunStatus reports why Run stopped.
type RunStatus string

const (
	RunConverged        RunStatus = "converged"
	RunStepLimitReached RunStatus = "step_limit_reached"
)

// StepResult is the outcome of a single Step.
type StepResult struct {
	Centroids []Point
	Partition Partition
	Step      int
	Converged bool
}

// RunResult is the outcome of Run.
type RunResult struct {
	Centroids []Point
	Partition Partition
	Step      int
	Status    RunStatus
}

// SessionConfig configures a Session. Zero values select the defaults.
type SessionConfig struct {
	DatasetSize int
	MaxSteps    int
	// Seed feeds the session RNG. Zero picks a random seed.
	Seed uint64
}

func (c SessionConfig) datasetSize() int {
	if c.DatasetSize <= 0 {
		return DefaultDatasetSize
	}
	return c.DatasetSize
}

func (c SessionConfig) maxSteps() int {
	if c.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return c.MaxSteps
}

// Session is the clustering state machine: one dataset, the current
// centroids and partition, and the step counter of the current lineage.
// A lineage starts on every successful Initialize or SetCentroids.
//
// Session is not safe for concurrent use.
type Session struct {
	rng         *rand.Rand
	datasetSize int
	maxSteps    int

	points    []Point
	centroids []Point
	partition Partition
	step      int
	state     State
	method    Method
	lineage   string

	observer StepObserver
}

// StepObserver is called after every completed step, including each step
// taken inside Run. It must not call back into the Session.
type StepObserver func(lineage string, res StepResult)

// NewSession creates a session with a freshly generated dataset.
func NewSession(cfg SessionConfig) *Session {
	s := newSession(cfg)
	s.points = GenerateDataset(s.datasetSize, s.rng)
	return s
}

// NewSessionWithPoints creates a session over a fixed dataset. It fails if
// points is empty or contains non-finite coordinates. GenerateDataset
// later draws datasets of the same size.
func NewSessionWithPoints(points []Point, cfg SessionConfig) (*Session, error) {
	cfg.DatasetSize = len(points)
	s := newSession(cfg)
	if err := s.ReplaceDataset(points); err != nil {
		return nil, err
	}
	return s, nil
}

func newSession(cfg SessionConfig) *Session {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Session{
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		datasetSize: cfg.datasetSize(),
		maxSteps:    cfg.maxSteps(),
	}
}

// GenerateDataset replaces the dataset with freshly drawn points and resets
// the session.
func (s *Session) GenerateDataset() []Point {
	s.points = GenerateDataset(s.datasetSize, s.rng)
	s.Reset()
	return s.Points()
}

// ReplaceDataset installs a caller-supplied dataset and resets the session.
func (s *Session) ReplaceDataset(points []Point) error {
	if len(points) == 0 {
		return fmt.Errorf("%w: dataset must not be empty", ErrInvalidParameter)
	}
	for i, p := range points {
		if !p.IsFinite() {
			return fmt.Errorf("%w: point %d has non-finite coordinates %v", ErrInvalidParameter, i, p)
		}
	}
	s.points = clonePoints(points)
	s.Reset()
	return nil
}

// Initialize seeds the centroids with an algorithmic strategy and starts a
// new lineage. An existing lineage is overwritten. On error the session is
// unchanged.
func (s *Session) Initialize(method Method, k int) ([]Point, error) {
	centroids, err := Initialize(method, k, s.points, s.rng)
	if err != nil {
		return nil, err
	}
	s.begin(method, centroids)
	return s.Centroids(), nil
}

// SetCentroids installs caller-supplied centroids and starts a new lineage.
// An existing lineage is overwritten. On error the session is unchanged.
func (s *Session) SetCentroids(centroids []Point) ([]Point, error) {
	valid, err := ValidateCentroids(centroids, len(s.points))
	if err != nil {
		return nil, err
	}
	s.begin(MethodManual, valid)
	return s.Centroids(), nil
}

func (s *Session) begin(method Method, centroids []Point) {
	s.centroids = centroids
	s.partition = nil
	s.step = 0
	s.state = StateActive
	s.method = method
	s.lineage = uuid.New().String()
}

// Step runs one assignment and update. Converged is set when the update
// left every centroid coordinate exactly unchanged.
func (s *Session) Step() (StepResult, error) {
	if s.state == StateUninitialized {
		return StepResult{}, ErrNotInitialized
	}

	return s.advance(), nil
}

// Run steps until the centroids stop moving or the step counter reaches
// the configured ceiling. The ceiling counts every step of the lineage, so
// a Run following manual Steps has fewer steps left.
func (s *Session) Run() (RunResult, error) {
	if s.state == StateUninitialized {
		return RunResult{}, ErrNotInitialized
	}

	status := RunStepLimitReached
	for s.step < s.maxSteps {
		if s.advance().Converged {
			status = RunConverged
			break
		}
	}
	if s.state == StateConverged {
		status = RunConverged
	}

	return RunResult{
		Centroids: s.Centroids(),
		Partition: s.Partition(),
		Step:      s.step,
		Status:    status,
	}, nil
}

// advance performs the step effect and notifies the observer.
func (s *Session) advance() StepResult {
	previous := clonePoints(s.centroids)
	s.partition = Assign(s.centroids, s.points)
	s.centroids = Update(s.partition, previous)
	s.step++

	converged := equalPoints(previous, s.centroids)
	if converged {
		s.state = StateConverged
	} else {
		s.state = StateActive
	}

	res := StepResult{
		Centroids: s.Centroids(),
		Partition: s.Partition(),
		Step:      s.step,
		Converged: converged,
	}
	if s.observer != nil {
		s.observer(s.lineage, res)
	}
	return res
}

// Reset clears the centroids, partition and step counter.
func (s *Session) Reset() {
	s.centroids = nil
	s.partition = nil
	s.step = 0
	s.state = StateUninitialized
	s.method = ""
	s.lineage = ""
}

// SetStepObserver installs fn as the step observer. Passing nil removes it.
func (s *Session) SetStepObserver(fn StepObserver) {
	s.observer = fn
}

// Points returns a copy of the dataset.
func (s *Session) Points() []Point { return clonePoints(s.points) }

// Centroids returns a copy of the current centroids, nil when uninitialized.
func (s *Session) Centroids() []Point { return clonePoints(s.centroids) }

// Partition returns a copy of the current partition. It is nil until the
// first step of a lineage.
func (s *Session) Partition() Partition {
	if s.partition == nil {
		return nil
	}
	out := make(Partition, len(s.partition))
	for i, g := range s.partition {
		out[i] = clonePoints(g)
	}
	return out
}

// StepCount returns the number of steps taken in the current lineage.
func (s *Session) StepCount() int { return s.step }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Method returns the strategy that started the current lineage.
func (s *Session) Method() Method { return s.method }

// Lineage returns the current lineage ID, empty when uninitialized.
func (s *Session) Lineage() string { return s.lineage }

// MaxSteps returns the Run ceiling.
func (s *Session) MaxSteps() int { return s.maxSteps }

// Snapshot is a read-only view of the session for status display.
type Snapshot struct {
	State     State     `json:"state"`
	Method    Method    `json:"method,omitempty"`
	Lineage   string    `json:"lineage,omitempty"`
	Step      int       `json:"step"`
	MaxSteps  int       `json:"max_steps"`
	K         int       `json:"k"`
	N         int       `json:"n"`
	Centroids []Point   `json:"centroids"`
	Sizes     []int     `json:"cluster_sizes,omitempty"`
	Inertia   *float64  `json:"inertia,omitempty"`
	Partition Partition `json:"-"`
}

// Snapshot captures the current state. Inertia and cluster sizes are only
// reported once a partition exists.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		State:     s.state,
		Method:    s.method,
		Lineage:   s.lineage,
		Step:      s.step,
		MaxSteps:  s.maxSteps,
		K:         len(s.centroids),
		N:         len(s.points),
		Centroids: s.Centroids(),
		Partition: s.Partition(),
	}
	if s.partition != nil {
		inertia := Inertia(s.centroids, s.partition)
		snap.Inertia = &inertia
		snap.Sizes = s.partition.Sizes()
	}
	return snap
}
