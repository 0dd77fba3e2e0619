package memory

import (
	"testing"

	"github.com/sashimi3433/Attendance-Check/internal/store"
	"github.com/sashimi3433/Attendance-Check/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}
