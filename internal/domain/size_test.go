package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n        int64
		expected string
	}{
		{0, "0 bytes"},
		{1, "1 byte"},
		{512, "512 bytes"},
		{1023, "1023 bytes"},
		{1024, "1 KiB"},
		{1536, "1.5 KiB"},
		{2326, "2.27 KiB"},
		{1535, "1.5 KiB"},
		{1800, "1.76 KiB"},
		{5119, "5 KiB"},
		{1048575, "1 MiB"},
		{1073741823, "1 GiB"},
		{1048576, "1 MiB"},
		{5 * 1024 * 1024 * 1024, "5 GiB"},
		{1073741824 + 536870912, "1.5 GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatSize(tt.n))
		})
	}
}
