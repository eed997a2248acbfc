package attendance

import (
	"context"
	"sort"
	"time"
)

// memStore is an in-memory Store for exercising the reconciler without
// Postgres. It enforces the same at-most-one-non-voided-record-per-day rule
// the partial unique index provides, and WithinTx snapshots state so a
// failed batch really rolls back.
type memStore struct {
	students  map[string]*Student
	records   map[string]*Record
	commitErr error
}

func newMemStore() *memStore {
	return &memStore{
		students: map[string]*Student{},
		records:  map[string]*Record{},
	}
}

func (m *memStore) InsertStudent(_ context.Context, s Student) (Student, error) {
	for _, existing := range m.students {
		if existing.NIS == s.NIS {
			return Student{}, ErrStudentExists
		}
	}
	s.CreatedAt = time.Now()
	cp := s
	m.students[s.ID] = &cp
	return s, nil
}

func (m *memStore) FindStudentByID(_ context.Context, id string) (*Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListStudents(_ context.Context, _, _ int) ([]Student, error) {
	var out []Student
	for _, s := range m.students {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NIS < out[j].NIS })
	return out, nil
}

func (m *memStore) UpdateStudent(_ context.Context, s Student) error {
	for id, existing := range m.students {
		if id != s.ID && existing.NIS == s.NIS {
			return ErrStudentExists
		}
	}
	existing, ok := m.students[s.ID]
	if !ok {
		return nil
	}
	existing.NIS, existing.Name, existing.ClassName = s.NIS, s.Name, s.ClassName
	return nil
}

func (m *memStore) DeleteStudent(_ context.Context, id string) (bool, error) {
	if _, ok := m.students[id]; !ok {
		return false, nil
	}
	delete(m.students, id)
	for rid, rec := range m.records {
		if rec.StudentID == id {
			delete(m.records, rid)
		}
	}
	return true, nil
}

func (m *memStore) BindCredential(_ context.Context, id, token, nonce string, at time.Time) (bool, error) {
	s, ok := m.students[id]
	if !ok || s.Token != "" {
		return false, nil
	}
	s.Token, s.Nonce = token, nonce
	issued := at
	s.CredentialIssuedAt = &issued
	return true, nil
}

func (m *memStore) GetRecord(_ context.Context, id string) (*Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) ActiveRecord(_ context.Context, studentID string, day time.Time) (*Record, error) {
	for _, rec := range m.records {
		if rec.StudentID == studentID && !rec.Voided && rec.Day.Equal(day) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertRecord(_ context.Context, rec Record) (Record, error) {
	for _, existing := range m.records {
		if existing.StudentID == rec.StudentID && !existing.Voided && existing.Day.Equal(rec.Day) {
			return Record{}, ErrDuplicateRecord
		}
	}
	rec.CreatedAt = time.Now()
	cp := rec
	m.records[rec.ID] = &cp
	return rec, nil
}

func (m *memStore) OverwriteRecord(_ context.Context, id string, status Status, scannedAt time.Time) error {
	rec, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Status, rec.ScannedAt = status, scannedAt
	return nil
}

func (m *memStore) VoidRecord(_ context.Context, id string, at time.Time) (bool, error) {
	rec, ok := m.records[id]
	if !ok || rec.Voided {
		return false, nil
	}
	rec.Voided = true
	voided := at
	rec.VoidedAt = &voided
	return true, nil
}

func (m *memStore) WithinTx(_ context.Context, fn func(Store) error) error {
	snapStudents := make(map[string]*Student, len(m.students))
	for id, s := range m.students {
		cp := *s
		snapStudents[id] = &cp
	}
	snapRecords := make(map[string]*Record, len(m.records))
	for id, r := range m.records {
		cp := *r
		snapRecords[id] = &cp
	}

	err := fn(m)
	if err == nil {
		err = m.commitErr
	}
	if err != nil {
		m.students, m.records = snapStudents, snapRecords
		return err
	}
	return nil
}

func (m *memStore) activeCount(studentID string) int {
	n := 0
	for _, rec := range m.records {
		if rec.StudentID == studentID && !rec.Voided {
			n++
		}
	}
	return n
}
