package commands

import (
	"testing"

	"github.com/spf13/viper"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"2KB", 2000, false},
		{" 1 MiB ", 1 << 20, false},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		viper.Set("store.max_total_size", tt.in)
		got, err := parseSize("store.max_total_size", "max-store-size")
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
	viper.Set("store.max_total_size", "")
}
