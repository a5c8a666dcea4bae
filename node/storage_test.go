package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zencan-go/zencan/od"
)

func TestStorageCommandObjectRequiresSupport(t *testing.T) {
	ctx := &StorageContext{}
	obj := NewStorageCommandObject(ctx)

	sub1, errCode := obj.Sub(1)
	assert.Equal(t, od.ErrOK, errCode)

	data := []byte{0x73, 0x61, 0x76, 0x65} // "save" little-endian
	assert.Equal(t, od.ErrNoResource, sub1.WriteFrom(data))
	assert.False(t, ctx.StoreRequested())

	ctx.SetSupported(true)
	assert.Equal(t, od.ErrOK, sub1.WriteFrom(data))
	assert.True(t, ctx.StoreRequested())

	ctx.Clear()
	assert.False(t, ctx.StoreRequested())
}

func TestStorageCommandObjectRejectsWrongMagic(t *testing.T) {
	ctx := &StorageContext{}
	ctx.SetSupported(true)
	obj := NewStorageCommandObject(ctx)
	sub1, _ := obj.Sub(1)

	assert.Equal(t, od.ErrParIncompat, sub1.WriteFrom([]byte{1, 2, 3, 4}))
	assert.Equal(t, od.ErrTypeMismatch, sub1.WriteFrom([]byte{1, 2, 3}))
}

func TestStorageCommandObjectReadSupportedBit(t *testing.T) {
	ctx := &StorageContext{}
	obj := NewStorageCommandObject(ctx)
	sub1, _ := obj.Sub(1)

	buf := make([]byte, 4)
	n, errCode := sub1.ReadInto(0, buf)
	assert.Equal(t, od.ErrOK, errCode)
	assert.Equal(t, 4, n)
	assert.EqualValues(t, 0, od.DecodeUint32(buf))

	ctx.SetSupported(true)
	n, errCode = sub1.ReadInto(0, buf)
	assert.Equal(t, od.ErrOK, errCode)
	assert.EqualValues(t, 1, od.DecodeUint32(buf))
}

func TestIDValidation(t *testing.T) {
	_, err := NewID(0)
	assert.Error(t, err)
	_, err = NewID(128)
	assert.Error(t, err)

	id, err := NewID(42)
	assert.NoError(t, err)
	assert.True(t, id.IsConfigured())
	assert.EqualValues(t, 42, id.Value())

	assert.False(t, Unconfigured.IsConfigured())
}
