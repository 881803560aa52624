package common

import "fmt"

// Terminal pipeline reasons.
var (
	ErrInvalidLink    = fmt.Errorf("invalid sticker pack link")
	ErrPackNotFound   = fmt.Errorf("sticker pack not found")
	ErrProvider       = fmt.Errorf("metadata provider error")
	ErrAllItemsFailed = fmt.Errorf("all items failed")
	ErrDelivery       = fmt.Errorf("delivery error")
	ErrCancelled      = fmt.Errorf("cancelled")
)

// Per item errors. They never abort a batch.
var (
	ErrFetch      = fmt.Errorf("fetch error")
	ErrConversion = fmt.Errorf("conversion error")
)

var (
	ErrAlreadyFinalized   = fmt.Errorf("archive has already been finalized")
	ErrStorageUnwritable  = fmt.Errorf("storage is not writable")
	ErrStorageFull        = fmt.Errorf("storage is full")
	ErrLinkNotFound       = fmt.Errorf("download link not found")
	ErrUnsupportedFormat  = fmt.Errorf("unsupported output format")
	ErrUnsupportedLocator = fmt.Errorf("unsupported item locator")
	ErrPreviewNotFound    = fmt.Errorf("preview not found")
)
