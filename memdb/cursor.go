package memdb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

var errCursorClosed = errors.New("cursor is closed")

// cursor iterates over a snapshot taken when the query ran.
type cursor struct {
	docs   []bson.M
	pos    int
	err    error
	closed bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.closed {
		c.err = errCursorClosed
		return false
	}

	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}

	if c.pos+1 >= len(c.docs) {
		return false
	}

	c.pos++
	return true
}

func (c *cursor) Decode(val interface{}) error {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return errors.New("no current document")
	}

	raw, err := bson.Marshal(c.docs[c.pos])
	if err != nil {
		return err
	}

	return bson.Unmarshal(raw, val)
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close(ctx context.Context) error {
	c.closed = true
	c.docs = nil
	return nil
}
