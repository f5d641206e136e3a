package channel

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process StatusChannel used by tests. It is safe for
// concurrent use although the protocol itself never has two writers.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memoryObject

	// PutErr, when set, is returned by the next Put call. Lets tests
	// exercise marker-write failures.
	PutErr error
}

type memoryObject struct {
	data    []byte
	updated time.Time
}

// NewMemory returns an empty in-memory channel.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

func (m *Memory) Ensure(ctx context.Context) error { return nil }

func (m *Memory) Put(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		err := m.PutErr
		m.PutErr = nil
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[name] = memoryObject{data: buf, updated: time.Now()}
	return nil
}

func (m *Memory) Get(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[name]
	if !ok {
		return nil, ErrNotExist
	}
	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, nil
}

func (m *Memory) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[name]
	if !ok {
		return ObjectInfo{}, ErrNotExist
	}
	return ObjectInfo{Name: name, Size: int64(len(obj.data)), Updated: obj.updated}, nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []ObjectInfo
	for name, obj := range m.objects {
		if strings.HasPrefix(name, prefix) {
			infos = append(infos, ObjectInfo{Name: name, Size: int64(len(obj.data)), Updated: obj.updated})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

// Names returns the sorted names of all stored objects.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
