package id

import "github.com/google/uuid"

// UUIDGenerator issues random identifiers for records that do not need a
// store-owned sequence (payment transactions, request ids).
type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator { return &UUIDGenerator{} }

func (UUIDGenerator) NewID() string { return uuid.NewString() }
