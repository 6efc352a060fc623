// Package utils provides formatting helpers for target property values.
package utils
