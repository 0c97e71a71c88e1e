// Package storetest holds the behavioural suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchqc/internal/models"
	"batchqc/internal/store"
)

// Fixture returns a batch with every stage record filled in.
func Fixture(id int64, date string) models.Batch {
	return models.Batch{
		ID:          id,
		Identifier:  fmt.Sprintf("CU-%d", id),
		ProductName: "Медная катанка",
		CreatedOn:   date,
		Smelting: &models.Smelting{
			TempRegime:     "1100-1200°C",
			TimeEachTemp:   "30 мин при 1100°C, 20 мин при 1200°C",
			TotalTime:      "50 мин",
			RawMaterials:   "Медная стружка, лом меди",
			ConsumedAmount: "500 кг сырья",
		},
		Refining:      &models.Refining{Duration: "15 мин", Chemicals: "Флюсы, раскислители", ChemicalsVolume: "1 кг раскислителя"},
		Cooling:       &models.Cooling{CoolingTime: "2 часа", Deformation: "Не обнаружено"},
		HeatTreatment: &models.HeatTreatment{TempRegime: "650°C", Duration: "1 час"},
		Mechanical:    &models.Mechanical{RolledSize: "Диаметр 8 мм", AdditionalInfo: "Калибровка в 2 этапа"},
	}
}

// Run exercises s, which must be empty.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()
	at := time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)

	t.Run("GetBatchNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetBatch(ctx, 999)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("CreateAndGetBatch", func(t *testing.T) {
		s := newStore(t)
		want := Fixture(101, "2025-03-01")
		require.NoError(t, s.CreateBatch(ctx, want))

		got, err := s.GetBatch(ctx, 101)
		require.NoError(t, err)
		assert.Equal(t, want, *got)

		err = s.CreateBatch(ctx, want)
		require.ErrorIs(t, err, store.ErrExists)
	})

	t.Run("MissingStagesAreNil", func(t *testing.T) {
		s := newStore(t)
		b := Fixture(5, "2025-03-01")
		b.Cooling = nil
		b.Mechanical = nil
		require.NoError(t, s.CreateBatch(ctx, b))

		got, err := s.GetBatch(ctx, 5)
		require.NoError(t, err)
		assert.Nil(t, got.Cooling)
		assert.Nil(t, got.Mechanical)
		assert.NotNil(t, got.Smelting)
	})

	t.Run("ListPendingFiltersByDateAndFlag", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateBatch(ctx, Fixture(1, "2025-03-01")))
		require.NoError(t, s.CreateBatch(ctx, Fixture(2, "2025-03-01")))
		require.NoError(t, s.CreateBatch(ctx, Fixture(3, "2025-03-02")))
		require.NoError(t, s.SetFinalControl(ctx, 2, true))

		items, err := s.ListPending(ctx, "2025-03-01")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(1), items[0].ID)
		assert.False(t, items[0].FinalControlDone)

		items, err = s.ListPending(ctx, "2025-04-01")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("RecordFinalControlKeepsInvariant", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateBatch(ctx, Fixture(101, "2025-03-01")))

		_, err := s.GetReport(ctx, 101)
		require.ErrorIs(t, err, store.ErrNotFound)

		r := models.FinalReport{
			BatchID: 101, SpatialDims: "10x20x30", VisualColor: "red", VisualSurface: "smooth",
			Density: "8.9", BoilingPoint: "2560", MeltingPoint: "1085", BatchGood: true,
			ControlledBy: "employee", ControlledAt: at,
		}
		require.NoError(t, s.RecordFinalControl(ctx, r))

		b, err := s.GetBatch(ctx, 101)
		require.NoError(t, err)
		assert.True(t, b.FinalControlDone)

		got, err := s.GetReport(ctx, 101)
		require.NoError(t, err)
		assert.Equal(t, r.SpatialDims, got.SpatialDims)
		assert.True(t, got.BatchGood)
		assert.True(t, got.ControlledAt.Equal(at))

		items, err := s.ListPending(ctx, "2025-03-01")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("ResubmissionOverwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateBatch(ctx, Fixture(101, "2025-03-01")))

		first := models.FinalReport{BatchID: 101, SpatialDims: "10x20x30", BatchGood: true, ControlledAt: at}
		second := models.FinalReport{BatchID: 101, SpatialDims: "11x21x31", BatchGood: false, ControlledAt: at.Add(time.Hour)}
		require.NoError(t, s.RecordFinalControl(ctx, first))
		require.NoError(t, s.RecordFinalControl(ctx, second))

		reports, err := s.ListReports(ctx)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, "11x21x31", reports[0].SpatialDims)
		assert.False(t, reports[0].BatchGood)
	})

	t.Run("RecordUnknownBatch", func(t *testing.T) {
		s := newStore(t)
		err := s.RecordFinalControl(ctx, models.FinalReport{BatchID: 42, ControlledAt: at})
		require.ErrorIs(t, err, store.ErrNotFound)

		reports, err := s.ListReports(ctx)
		require.NoError(t, err)
		assert.Empty(t, reports)
	})

	t.Run("ListReportsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []int64{1, 2, 3} {
			require.NoError(t, s.CreateBatch(ctx, Fixture(id, "2025-03-01")))
		}
		require.NoError(t, s.RecordFinalControl(ctx, models.FinalReport{BatchID: 1, ControlledAt: at.Add(2 * time.Hour)}))
		require.NoError(t, s.RecordFinalControl(ctx, models.FinalReport{BatchID: 2, ControlledAt: at}))
		require.NoError(t, s.RecordFinalControl(ctx, models.FinalReport{BatchID: 3, ControlledAt: at.Add(time.Hour)}))

		reports, err := s.ListReports(ctx)
		require.NoError(t, err)
		require.Len(t, reports, 3)
		assert.Equal(t, []int64{1, 3, 2}, []int64{reports[0].BatchID, reports[1].BatchID, reports[2].BatchID})
		assert.Equal(t, "Медная катанка", reports[0].ProductName)
		assert.NotEmpty(t, reports[0].Identifier)
	})

	t.Run("SetFinalControlUnknownBatch", func(t *testing.T) {
		s := newStore(t)
		require.ErrorIs(t, s.SetFinalControl(ctx, 7, true), store.ErrNotFound)
	})
}
