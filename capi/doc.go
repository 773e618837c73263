// Package capi implements native.Engine over the TensorFlow Lite C API.
//
// Build Requirements:
// - TensorFlow Lite C library (libtensorflowlite_c) on the linker path
// - Headers under tensorflow/lite/c/ on the include path
//
// Build Tags:
// - cgo: Requires CGo (enabled by default)
// - !notflite: Excluded when notflite is set; NewEngine then returns an
//   engine whose constructors fail with status.ErrUnavailable
// - tflite_external_delegate: links TfLiteExternalDelegateCreate so that
//   NewExternalDelegate can load delegate plugins
package capi
