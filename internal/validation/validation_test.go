package validation

import "testing"

func TestIsValidResourceID(t *testing.T) {
	valid := []string{
		"evt_0123456789abcdef01234567",
		"dec_aaaaaaaaaaaaaaaaaaaaaaaa",
		"job_ABC123-xyz_9",
	}
	for _, id := range valid {
		if !IsValidResourceID(id) {
			t.Errorf("%s should be valid", id)
		}
	}

	invalid := []string{
		"",
		"evt_",
		"evt_short",
		"foo_0123456789abcdef01234567",
		"dec_0123456789abcdef01234567; DROP TABLE decision_records",
	}
	for _, id := range invalid {
		if IsValidResourceID(id) {
			t.Errorf("%s should be invalid", id)
		}
	}
}

func TestIsValidTenantID(t *testing.T) {
	if !IsValidTenantID("acme-shop_01") {
		t.Error("lowercase with dashes and underscores should be valid")
	}
	for _, id := range []string{"", "-leading", "UPPER", "has space"} {
		if IsValidTenantID(id) {
			t.Errorf("%s should be invalid", id)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("got %q, want truncation to 3", got)
	}
}
