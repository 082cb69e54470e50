// Package persist keeps per-channel calibration settings in a small
// byte-addressed non-volatile store laid out like an EEPROM.
package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultSize is the size of the emulated EEPROM image, in bytes.
const DefaultSize = 1024

// erased is the value of a never-written EEPROM cell.
const erased = 0xFF

var ErrOutOfRange = errors.New("address out of range")

// Store is a byte-addressed non-volatile medium.
type Store interface {
	Read(addr, n int) ([]byte, error)
	Write(addr int, data []byte) error
}

// Sizer is implemented by stores that know their capacity.
type Sizer interface {
	Size() int
}

// CheckRange reports whether [addr, addr+n) lies within a store of size bytes.
func CheckRange(addr, n, size int) error {
	if addr < 0 || n < 0 || addr+n > size {
		return fmt.Errorf("%w: [%d, %d) not within %d bytes", ErrOutOfRange, addr, addr+n, size)
	}
	return nil
}

// MemStore is an in-memory Store. The ReadErr and WriteErr fields are
// returned by the next matching call when set.
type MemStore struct {
	mu   sync.Mutex
	data []byte

	ReadErr    error
	WriteErr   error
	WriteCalls int
}

// NewMemStore returns an erased store of size bytes.
func NewMemStore(size int) *MemStore {
	if size <= 0 {
		size = DefaultSize
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = erased
	}
	return &MemStore{data: data}
}

func (m *MemStore) Read(addr, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		err := m.ReadErr
		m.ReadErr = nil
		return nil, err
	}
	if err := CheckRange(addr, n, len(m.data)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[addr:addr+n])
	return out, nil
}

func (m *MemStore) Write(addr int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteCalls++
	if m.WriteErr != nil {
		err := m.WriteErr
		m.WriteErr = nil
		return err
	}
	if err := CheckRange(addr, len(data), len(m.data)); err != nil {
		return err
	}
	copy(m.data[addr:], data)
	return nil
}

func (m *MemStore) Size() int { return len(m.data) }

// Bytes returns a copy of the whole image.
func (m *MemStore) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// FileStore is a Store backed by a fixed-size image file. Bytes past the end
// of a short file read as erased.
type FileStore struct {
	mu   sync.Mutex
	f    *os.File
	size int
}

// OpenFileStore opens (creating if needed) the image at path.
func OpenFileStore(path string, size int) (*FileStore, error) {
	if size <= 0 {
		size = DefaultSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open store image: %w", err)
	}
	return &FileStore{f: f, size: size}, nil
}

func (s *FileStore) Size() int { return s.size }

func (s *FileStore) Read(addr, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := CheckRange(addr, n, s.size); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	got, err := s.f.ReadAt(out, int64(addr))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read store image: %w", err)
	}
	for i := got; i < n; i++ {
		out[i] = erased
	}
	return out, nil
}

func (s *FileStore) Write(addr int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := CheckRange(addr, len(data), s.size); err != nil {
		return err
	}
	if err := s.padTo(int64(addr)); err != nil {
		return err
	}
	if _, err := s.f.WriteAt(data, int64(addr)); err != nil {
		return fmt.Errorf("failed to write store image: %w", err)
	}
	return s.f.Sync()
}

// padTo fills any gap between the current end of file and off with erased
// bytes so that holes do not read back as zero.
func (s *FileStore) padTo(off int64) error {
	info, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat store image: %w", err)
	}
	if info.Size() >= off {
		return nil
	}
	pad := make([]byte, off-info.Size())
	for i := range pad {
		pad[i] = erased
	}
	if _, err := s.f.WriteAt(pad, info.Size()); err != nil {
		return fmt.Errorf("failed to pad store image: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return s.f.Close()
}
