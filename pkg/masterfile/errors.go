package masterfile

import "errors"

var (
	// ErrInvalidArgument is returned when a required input (reader, writer,
	// record) is absent.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMalformedData is returned by Load when the persisted content cannot
	// be decoded. The store is left unmodified.
	ErrMalformedData = errors.New("malformed master file data")

	// ErrInvalidAddress is returned when an address literal cannot be parsed.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidName is returned when a record owner name is empty or not a
	// valid domain name.
	ErrInvalidName = errors.New("invalid name")
)
