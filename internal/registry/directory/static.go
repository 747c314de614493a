package directory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	id "credreg/pkg/domain"
)

// File is the YAML layout of a static role directory:
//
//	authorities: [authority-1]
//	institutions:
//	  uni-1: [registrar-1]
//	track_a: [reviewer-a1]
//	track_b: [reviewer-b1]
type File struct {
	Authorities  []string            `yaml:"authorities"`
	Institutions map[string][]string `yaml:"institutions"`
	TrackA       []string            `yaml:"track_a"`
	TrackB       []string            `yaml:"track_b"`
}

type membership struct {
	role        id.Role
	institution id.InstitutionID
}

// Static is an immutable in-process directory.
type Static struct {
	members map[id.Identity]membership
}

// LoadStatic reads a YAML directory file.
func LoadStatic(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role directory: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse role directory: %w", err)
	}
	return NewStatic(f)
}

// NewStatic validates f and builds the directory. Overlapping roles are a
// configuration error.
func NewStatic(f File) (*Static, error) {
	s := &Static{members: make(map[id.Identity]membership)}
	add := func(raw string, m membership) error {
		ident, err := id.ParseIdentity(raw)
		if err != nil {
			return err
		}
		if prev, ok := s.members[ident]; ok {
			return fmt.Errorf("identity %q listed as both %s and %s", ident, prev.role, m.role)
		}
		s.members[ident] = m
		return nil
	}

	for _, a := range f.Authorities {
		if err := add(a, membership{role: id.RoleAuthority}); err != nil {
			return nil, err
		}
	}
	for inst, holders := range f.Institutions {
		instID, err := id.ParseInstitutionID(inst)
		if err != nil {
			return nil, err
		}
		for _, h := range holders {
			if err := add(h, membership{role: id.RoleInstitution, institution: instID}); err != nil {
				return nil, err
			}
		}
	}
	for _, a := range f.TrackA {
		if err := add(a, membership{role: id.RoleTrackA}); err != nil {
			return nil, err
		}
	}
	for _, b := range f.TrackB {
		if err := add(b, membership{role: id.RoleTrackB}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Static) Confirm(_ context.Context, c id.Caller) error {
	m, ok := s.members[c.Identity]
	if !ok || m.role != c.Role {
		return notHeld(c)
	}
	if c.Role == id.RoleInstitution && m.institution != c.InstitutionID {
		return notHeld(c)
	}
	return nil
}
