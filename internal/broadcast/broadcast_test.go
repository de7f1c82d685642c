package broadcast

import "testing"

func TestNoOp_NeverPanics(t *testing.T) {
	var b Broadcaster = NoOp{}
	b.Emit("anything", map[string]interface{}{"x": 1})
}

func TestLogger_NilFallsBackToStandard(t *testing.T) {
	l := NewLogger(nil)
	l.Emit("futures.liquidation", map[string]interface{}{"ticker": "BTCUSDT"})
}
