package bridge

// Profile is a stable integer handle for a remembered network identity.
type Profile struct {
	ID   int
	Path string

	// Last known details, used when the network is not in the current snapshot.
	Name     string
	Security []string
}

// Registry maps profile ids to network identities for the lifetime of the
// process. Ids start at 1 and are never reused.
type Registry struct {
	lastID   int
	profiles []*Profile
}

// Create registers a new profile for path.
func (r *Registry) Create(path string) *Profile {
	r.lastID++
	p := &Profile{ID: r.lastID, Path: path}
	r.profiles = append(r.profiles, p)
	return p
}

// FindByID returns the profile with the given id, or nil.
func (r *Registry) FindByID(id int) *Profile {
	for _, p := range r.profiles {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// FindByPath returns the profile of a network identity, or nil.
func (r *Registry) FindByPath(path string) *Profile {
	for _, p := range r.profiles {
		if p.Path == path {
			return p
		}
	}
	return nil
}

// RemoveByID deletes a profile. It is a no-op for unknown ids.
func (r *Registry) RemoveByID(id int) {
	for i, p := range r.profiles {
		if p.ID == id {
			r.profiles = append(r.profiles[:i], r.profiles[i+1:]...)
			return
		}
	}
}

// List returns all profiles in creation order.
func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, *p)
	}
	return out
}
