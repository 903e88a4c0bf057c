package rooms

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestGenerateCode_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{4}$`)

	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode() error: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Errorf("GenerateCode() = %q, doesn't match expected pattern", code)
		}
	}
}

func TestGenerateCode_NoAmbiguousChars(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatal(err)
		}
		if strings.ContainsAny(code, "0OIL1") {
			t.Errorf("code %q contains ambiguous character", code)
		}
	}
}

func TestGenerateID(t *testing.T) {
	now := time.UnixMicro(1760451000000000)
	id, err := GenerateID(now)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(id, "1760451000000000-") {
		t.Errorf("GenerateID() = %q, want time prefix", id)
	}
	if len(id) != len("1760451000000000-")+codeLength {
		t.Errorf("GenerateID() = %q, unexpected length", id)
	}
}
