// Package memorystore implements storage.Store in a purely in-memory manner.
// It is intended for tests and for hosts that configure all applications
// statically at startup.
package memorystore

import (
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"github.com/dpup/passage/storage"
)

// New returns a store that provides transient, in-memory storage.
func New() storage.Store {
	return &store{
		data: map[string]map[string][]byte{},
	}
}

type store struct {
	// data[tableName][entityID] = JSON
	data map[string]map[string][]byte
	mu   sync.RWMutex
}

func (s *store) Create(models ...storage.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range models {
		n := storage.Name(m)
		if s.data[n] != nil && s.data[n][m.PK()] != nil {
			return storage.ErrAlreadyExists
		}
	}
	return s.putLocked(models...)
}

func (s *store) Update(models ...storage.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range models {
		n := storage.Name(m)
		if s.data[n] == nil || s.data[n][m.PK()] == nil {
			return storage.ErrNotFound
		}
	}
	return s.putLocked(models...)
}

func (s *store) Upsert(models ...storage.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(models...)
}

func (s *store) putLocked(models ...storage.Model) error {
	for _, m := range models {
		n := storage.Name(m)
		if s.data[n] == nil {
			s.data[n] = map[string][]byte{}
		}
		jsonBytes, err := json.Marshal(m)
		if err != nil {
			return storage.ErrInvalidModel
		}
		s.data[n][m.PK()] = jsonBytes
	}
	return nil
}

func (s *store) Read(id string, model storage.Model) error {
	if err := storage.ValidateReceiver(model); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := storage.Name(model)
	if s.data[n] == nil || s.data[n][id] == nil {
		return storage.ErrNotFound
	}
	return json.Unmarshal(s.data[n][id], model)
}

func (s *store) Exists(id string, model storage.Model) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := storage.Name(model)
	if s.data[n] == nil {
		return false, nil
	}
	return s.data[n][id] != nil, nil
}

func (s *store) Delete(model storage.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := storage.Name(model)
	id := model.PK()
	if s.data[n] == nil || s.data[n][id] == nil {
		return storage.ErrNotFound
	}
	delete(s.data[n], id)
	return nil
}

// List always performs a full scan of all items. Both value and pointer
// models are supported; the slice element type must match the filter type.
func (s *store) List(models interface{}, filter storage.Model) error {
	if err := storage.ValidateReceiver(filter); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	modelsVal := reflect.ValueOf(models)
	if modelsVal.Kind() != reflect.Ptr || modelsVal.Elem().Kind() != reflect.Slice {
		return storage.ErrSliceRequired
	}

	sliceVal := modelsVal.Elem()
	elemType := sliceVal.Type().Elem()
	if elemType != reflect.TypeOf(filter) {
		return storage.ErrTypeMismatch
	}
	structType := elemType
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	n := storage.Name(filter)
	if s.data[n] == nil {
		return nil
	}

	// Return models sorted by primary key.
	pks := make([]string, 0, len(s.data[n]))
	for pk := range s.data[n] {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	filterValue := reflect.Indirect(reflect.ValueOf(filter))

	for _, pk := range pks {
		newElemPtr := reflect.New(structType)
		newElem := newElemPtr.Elem()
		if err := json.Unmarshal(s.data[n][pk], newElemPtr.Interface()); err != nil {
			return storage.ErrInvalidModel
		}
		// Skip if any non-zero field in filter differs from the corresponding
		// field in model.
		skip := false
		for i := 0; i < newElem.NumField(); i++ {
			if shouldFilter(filterValue.Field(i)) {
				fieldVal := newElem.Field(i).Interface()
				testVal := filterValue.Field(i).Interface()
				if !reflect.DeepEqual(fieldVal, testVal) {
					skip = true
					break
				}
			}
		}
		if !skip {
			if elemType.Kind() == reflect.Ptr {
				sliceVal.Set(reflect.Append(sliceVal, newElemPtr))
			} else {
				sliceVal.Set(reflect.Append(sliceVal, newElem))
			}
		}
	}

	return nil
}

// shouldFilter returns true for non-zero values and non-nil pointers.
func shouldFilter(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		return !v.IsNil()
	default:
		return !reflect.DeepEqual(v.Interface(), reflect.Zero(v.Type()).Interface())
	}
}
