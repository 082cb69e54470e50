package db

import (
	"context"
	"fmt"

	"github.com/balance-lab/forceplate/internal/persist"
)

// EEPROM is a persist.Store held in the eeprom_bytes table. Cells that were
// never written read as 0xFF.
type EEPROM struct {
	db   *DB
	size int
}

var _ persist.Store = (*EEPROM)(nil)

// NewEEPROM returns a store of size bytes backed by d.
func NewEEPROM(d *DB, size int) *EEPROM {
	if size <= 0 {
		size = persist.DefaultSize
	}
	return &EEPROM{db: d, size: size}
}

func (e *EEPROM) Size() int { return e.size }

func (e *EEPROM) Read(addr, n int) ([]byte, error) {
	if err := persist.CheckRange(addr, n, e.size); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xFF
	}

	rows, err := e.db.Query(
		`SELECT addr, value FROM eeprom_bytes WHERE addr >= ? AND addr < ?`,
		addr, addr+n,
	)
	if err != nil {
		return nil, fmt.Errorf("read eeprom [%d, %d): %w", addr, addr+n, err)
	}
	defer rows.Close()
	for rows.Next() {
		var a, v int
		if err := rows.Scan(&a, &v); err != nil {
			return nil, err
		}
		out[a-addr] = byte(v)
	}
	return out, rows.Err()
}

// Write stores data at addr in one transaction, so a record is never half
// written.
func (e *EEPROM) Write(addr int, data []byte) error {
	if err := persist.CheckRange(addr, len(data), e.size); err != nil {
		return err
	}
	tx, err := e.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO eeprom_bytes (addr, value) VALUES (?, ?)
		ON CONFLICT(addr) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, b := range data {
		if _, err := stmt.Exec(addr+i, int(b)); err != nil {
			return fmt.Errorf("write eeprom byte %d: %w", addr+i, err)
		}
	}
	return tx.Commit()
}

// Erase resets every cell to 0xFF.
func (e *EEPROM) Erase() error {
	_, err := e.db.Exec(`DELETE FROM eeprom_bytes`)
	return err
}
