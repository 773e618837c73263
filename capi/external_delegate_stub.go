//go:build !cgo || notflite || !tflite_external_delegate

package capi

import (
	"github.com/mattn/go-tflite/delegates"

	"tflitebridge/status"
)

// NewExternalDelegate is unavailable without the tflite_external_delegate tag.
func NewExternalDelegate(libPath string, options map[string]string) (delegates.Delegater, error) {
	return nil, status.Errorf("delegate.create", status.KindUnavailable,
		"external delegates are not linked into this build (%s)", libPath)
}
