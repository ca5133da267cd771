package rules

import "testing"

func TestChessOracleAcceptsLegalUCI(t *testing.T) {
	o := ChessOracle{}
	if err := o.ValidateMove(nil, "e2e4"); err != nil {
		t.Fatalf("legal opening move rejected: %v", err)
	}
	if err := o.ValidateMove([]string{"e2e4"}, "e7e5"); err != nil {
		t.Fatalf("legal reply rejected: %v", err)
	}
}

func TestChessOracleAcceptsSANFallback(t *testing.T) {
	o := ChessOracle{}
	if err := o.ValidateMove([]string{"e2e4", "e7e5"}, "Nf3"); err != nil {
		t.Fatalf("legal SAN move rejected: %v", err)
	}
}

func TestChessOracleRejectsIllegal(t *testing.T) {
	o := ChessOracle{}
	if err := o.ValidateMove(nil, "e2e5"); err != ErrIllegalMove {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if err := o.ValidateMove(nil, ""); err != ErrIllegalMove {
		t.Fatalf("expected ErrIllegalMove for empty payload, got %v", err)
	}
}

func TestAllowAllTrustsEverything(t *testing.T) {
	o := AllowAll{}
	if err := o.ValidateMove(nil, "not-a-move"); err != nil {
		t.Fatalf("AllowAll must not validate: %v", err)
	}
}
