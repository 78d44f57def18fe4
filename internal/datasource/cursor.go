package datasource

import (
	"database/sql/driver"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/ignaciocaff/spbind/internal/core"
)

// refCursor reads a SYS_REFCURSOR output parameter of the go-ora driver.
type refCursor struct {
	cursor  go_ora.RefCursor
	dataSet *go_ora.DataSet
}

func newRefCursor() core.Cursor {
	return &refCursor{}
}

func (c *refCursor) Dest() any {
	return &c.cursor
}

func (c *refCursor) Rows() (driver.Rows, error) {
	if c.dataSet == nil {
		dataSet, err := c.cursor.Query()
		if err != nil {
			return nil, err
		}
		c.dataSet = dataSet
	}
	return c.dataSet, nil
}

// Close releases the cursor. A data set owns its cursor once opened.
func (c *refCursor) Close() error {
	if c.dataSet != nil {
		dataSet := c.dataSet
		c.dataSet = nil
		return dataSet.Close()
	}
	return c.cursor.Close()
}
