// Package kmeans owns the clustering engine behind the visualiser.
//
// Responsibilities: centroid initialisation (random, farthest-first,
// k-means++, manual), nearest-centroid assignment, centroid update with a
// freeze-in-place empty-cluster policy, and exact-equality convergence
// detection, all driven through the Session state machine.
// Key types: Point, Partition, Session.
//
// The package performs no I/O and defines no locking. A concurrent host
// must serialise every call against a single Session.
package kmeans
