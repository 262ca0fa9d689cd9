// Package spatial provides the 6-d spatial algebra used by the rigid-body model.
//
// Spatial vectors store the angular part first:
//
//   - [Vector]: twist, spatial acceleration or wrench ([angular; linear])
//   - [Rotation]: 3x3 rotation (or symmetric inertia) matrix
//   - [Transform]: rigid transform (rotation + translation)
//   - [Inertia]: rigid-body inertia (mass, centre of mass, rotational inertia)
//
// Unless stated otherwise, vectors are expressed in world coordinates at the
// world origin, so motion and force vectors of different bodies can be added
// without any change of coordinates.
package spatial
