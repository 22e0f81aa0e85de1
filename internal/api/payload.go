package api

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/kmeans.visualiser/internal/config"
	"github.com/banshee-data/kmeans.visualiser/internal/kmeans"
)

// clusterRequest is the body accepted by /initialize_centroids, /step and
// /run. Numbers arrive as json.Number; the UI sends k as an integer but
// older clients post it as a string, so both are accepted.
type clusterRequest struct {
	Method    string          `json:"method"`
	K         interface{}     `json:"k"`
	Centroids [][]interface{} `json:"centroids"`
}

// seed describes how to start a lineage.
type seed struct {
	method    kmeans.Method
	k         int
	centroids []kmeans.Point
}

// parseSeed validates the request against the configured defaults. An
// empty method selects the default method and a missing k the default k.
func (req clusterRequest) parseSeed(cfg *config.ServerConfig) (seed, error) {
	if len(req.Centroids) > 0 {
		centroids, err := parseCentroids(req.Centroids)
		if err != nil {
			return seed{}, err
		}
		return seed{method: kmeans.MethodManual, k: len(centroids), centroids: centroids}, nil
	}

	method := cfg.GetDefaultMethod()
	if strings.TrimSpace(req.Method) != "" {
		m, err := kmeans.ParseMethod(strings.TrimSpace(req.Method))
		if err != nil {
			return seed{}, err
		}
		method = m
	}

	k, err := parseK(req.K, cfg.GetDefaultK())
	if err != nil {
		return seed{}, err
	}
	return seed{method: method, k: k}, nil
}

// parseK accepts an integer JSON number, an integral float such as 3.0, or
// a decimal string.
func parseK(v interface{}, fallback int) (int, error) {
	switch k := v.(type) {
	case nil:
		return fallback, nil
	case json.Number:
		if n, err := k.Int64(); err == nil {
			return int(n), nil
		}
		f, err := k.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, fmt.Errorf("%w: k must be an integer, got %s", kmeans.ErrInvalidParameter, k)
		}
		return int(f), nil
	case float64:
		if k != math.Trunc(k) || math.Abs(k) > math.MaxInt32 {
			return 0, fmt.Errorf("%w: k must be an integer, got %v", kmeans.ErrInvalidParameter, k)
		}
		return int(k), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return 0, fmt.Errorf("%w: k must be an integer, got %q", kmeans.ErrInvalidParameter, k)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: k must be an integer, got %T", kmeans.ErrInvalidParameter, v)
	}
}

func parseCentroids(raw [][]interface{}) ([]kmeans.Point, error) {
	centroids := make([]kmeans.Point, len(raw))
	for i, c := range raw {
		if len(c) != 2 {
			return nil, fmt.Errorf("%w: centroid %d must have 2 coordinates, got %d", kmeans.ErrInvalidParameter, i, len(c))
		}
		x, err := parseCoordinate(c[0])
		if err != nil {
			return nil, fmt.Errorf("centroid %d x: %w", i, err)
		}
		y, err := parseCoordinate(c[1])
		if err != nil {
			return nil, fmt.Errorf("centroid %d y: %w", i, err)
		}
		centroids[i] = kmeans.Point{X: x, Y: y}
	}
	return centroids, nil
}

func parseCoordinate(v interface{}) (float64, error) {
	switch c := v.(type) {
	case json.Number:
		f, err := c.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: invalid coordinate %s", kmeans.ErrInvalidParameter, c)
		}
		return f, nil
	case float64:
		return c, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid coordinate %q", kmeans.ErrInvalidParameter, c)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: invalid coordinate of type %T", kmeans.ErrInvalidParameter, v)
	}
}
