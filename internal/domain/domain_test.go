package domain

import "testing"

func TestAgreementStatus_Valid(t *testing.T) {
	for _, s := range []AgreementStatus{
		StatusGenerated, StatusApproved, StatusCancelled,
		StatusExpired, StatusDraft, StatusRejected, StatusDeleted,
	} {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	for _, s := range []AgreementStatus{"", "0", "8", "APPROVED"} {
		if s.Valid() {
			t.Errorf("status %q should be invalid", s)
		}
	}
}

func TestAgreementStatus_Name(t *testing.T) {
	cases := map[AgreementStatus]string{
		StatusGenerated: "GENERATED",
		StatusApproved:  "APPROVED",
		StatusDeleted:   "DELETED",
		"99":            "",
	}
	for s, want := range cases {
		if got := s.Name(); got != want {
			t.Errorf("Name(%q) = %q, want %q", s, got, want)
		}
	}
}

func TestSourceSystem_Valid(t *testing.T) {
	if !SourceSPF.Valid() || !SourcePMM.Valid() {
		t.Error("SPF and PMM should be valid")
	}
	if SourceSystem("spf").Valid() || SourceSystem("").Valid() {
		t.Error("lowercase or empty source system should be invalid")
	}
}

func TestStoreRuleStatus_Valid(t *testing.T) {
	if !StoreRuleInclude.Valid() || !StoreRuleExclude.Valid() {
		t.Error("INCLUDE and EXCLUDE should be valid")
	}
	if StoreRuleStatus("BOTH").Valid() {
		t.Error("unknown store rule status should be invalid")
	}
}
