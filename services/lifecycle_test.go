package services

import (
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"school_equipment_portal/apperror"
	"school_equipment_portal/db"
	"school_equipment_portal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSubmitLaptopScenario(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, models.RoleStudent)
	laptop := f.item(t, "Laptop", 5)

	a, err := f.submit(t, alice, laptop, 3, "2025-11-01", "2025-11-07")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, a.Status)
	assert.Equal(t, alice.UserID, a.UserID)

	_, err = f.submit(t, alice, laptop, 3, "2025-11-05", "2025-11-10")
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	var ae *apperror.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "Equipment: Laptop is not available for the dates 2025-11-05 to 2025-11-10", ae.Public())

	c, err := f.submit(t, alice, laptop, 2, "2025-11-08", "2025-11-10")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Quantity)

	all, err := f.repo.ListBorrowRequests(t.Context(), db.BorrowRequestFilter{EquipmentID: laptop.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2, "the rejected submission leaves no record")
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, models.RoleStudent)
	bob := f.user(t, models.RoleStudent)
	staff := f.user(t, models.RoleStaff)
	eq := f.item(t, "Laptop", 5)

	_, err := f.submit(t, Actor{}, eq, 1, "2025-01-01", "2025-01-02")
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))

	_, err = f.submit(t, alice, eq, 1, "2025-01-05", "2025-01-02")
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))

	_, err = f.submit(t, alice, eq, 0, "2025-01-01", "2025-01-02")
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))

	_, err = f.submit(t, alice, &models.Equipment{ID: "00000000-0000-0000-0000-000000000000"}, 1, "2025-01-01", "2025-01-02")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	// 替他人提交：学生不行，staff 可以
	in := SubmitInput{RequesterID: bob.UserID, EquipmentID: eq.ID, Quantity: 1, BorrowDate: d("2025-01-01"), ReturnDate: d("2025-01-02")}
	_, err = f.lifecycle.Submit(t.Context(), alice, in)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))
	br, err := f.lifecycle.Submit(t.Context(), staff, in)
	require.NoError(t, err)
	assert.Equal(t, bob.UserID, br.UserID)

	in.RequesterID = "00000000-0000-0000-0000-000000000000"
	_, err = f.lifecycle.Submit(t.Context(), staff, in)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	tooLong := strings.Repeat("x", 256)
	in = SubmitInput{EquipmentID: eq.ID, Quantity: 1, BorrowDate: d("2025-01-01"), ReturnDate: d("2025-01-02"), Remarks: &tooLong}
	_, err = f.lifecycle.Submit(t.Context(), alice, in)
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))
}

func TestConcurrentSubmitsNeverOvercommit(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, models.RoleStudent)
	bob := f.user(t, models.RoleStudent)
	eq := f.item(t, "Laptop", 1)

	var admitted, rejected atomic.Int32
	var g errgroup.Group
	for _, who := range []Actor{alice, bob} {
		g.Go(func() error {
			_, err := f.submit(t, who, eq, 1, "2025-06-01", "2025-06-03")
			switch {
			case err == nil:
				admitted.Add(1)
			case apperror.Is(err, apperror.KindConflict):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, admitted.Load())
	assert.EqualValues(t, 1, rejected.Load())
}

func TestConcurrentSubmitsRespectCapacity(t *testing.T) {
	f := newFixture(t)
	eq := f.item(t, "Calculator", 3)
	actors := make([]Actor, 12)
	for i := range actors {
		actors[i] = f.user(t, models.RoleStudent)
	}

	var admitted atomic.Int32
	var g errgroup.Group
	for i, who := range actors {
		// 窗口两两交错，但都覆盖 07-05
		from, to := "2025-07-01", "2025-07-05"
		if i%2 == 1 {
			from, to = "2025-07-05", "2025-07-09"
		}
		g.Go(func() error {
			_, err := f.submit(t, who, eq, 1, from, to)
			if err == nil {
				admitted.Add(1)
				return nil
			}
			if apperror.Is(err, apperror.KindConflict) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 3, admitted.Load())

	active, err := f.repo.ActiveRequestsForEquipment(t.Context(), eq.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, PeakCommitment(active), eq.TotalQuantity)
}

func TestAmendRevalidatesCapacity(t *testing.T) {
	f := newFixture(t)
	staff := f.user(t, models.RoleStaff)
	owner := f.user(t, models.RoleStudent)
	eq := f.item(t, "Projector", 3)
	br := f.seed(t, owner, eq, 3, "2025-09-01", "2025-09-05", models.StatusApproved)

	_, err := f.lifecycle.Amend(t.Context(), staff, br.ID, AmendPatch{Quantity: Some(4)})
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	got, err := f.repo.FindBorrowRequestByID(t.Context(), br.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity, "failed amend leaves the record untouched")

	updated, err := f.lifecycle.Amend(t.Context(), staff, br.ID, AmendPatch{Quantity: Some(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Quantity)
	assert.Equal(t, models.StatusApproved, updated.Status)
}

func TestAmendMovingWindowIntoBusyDays(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, models.RoleStudent)
	other := f.user(t, models.RoleStudent)
	eq := f.item(t, "Tablet", 2)
	f.seed(t, other, eq, 2, "2025-10-10", "2025-10-12", models.StatusApproved)
	br := f.seed(t, owner, eq, 1, "2025-10-01", "2025-10-02", models.StatusRequested)

	_, err := f.lifecycle.Amend(t.Context(), owner, br.ID, AmendPatch{ReturnDate: Some("2025-10-10")})
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	moved, err := f.lifecycle.Amend(t.Context(), owner, br.ID, AmendPatch{BorrowDate: Some("2025-10-03"), ReturnDate: Some("2025-10-09")})
	require.NoError(t, err)
	assert.Equal(t, "2025-10-03", FormatDate(moved.BorrowDate))
	assert.Equal(t, "2025-10-09", FormatDate(moved.ReturnDate))

	// 只改一端导致区间倒置：整体拒绝
	_, err = f.lifecycle.Amend(t.Context(), owner, br.ID, AmendPatch{Quantity: Some(2), BorrowDate: Some("2025-10-20")})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))
	got, err := f.repo.FindBorrowRequestByID(t.Context(), br.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity)
	assert.Equal(t, "2025-10-03", FormatDate(got.BorrowDate))
}

func TestAmendTransitionTable(t *testing.T) {
	cases := []struct {
		from, to models.RequestStatus
		ok       bool
	}{
		{models.StatusRequested, models.StatusPending, true},
		{models.StatusRequested, models.StatusApproved, true},
		{models.StatusRequested, models.StatusRejected, true},
		{models.StatusRequested, models.StatusReturned, false},
		{models.StatusPending, models.StatusApproved, true},
		{models.StatusPending, models.StatusRejected, true},
		{models.StatusPending, models.StatusRequested, false},
		{models.StatusApproved, models.StatusReturned, true},
		{models.StatusApproved, models.StatusRejected, false},
		{models.StatusRejected, models.StatusApproved, false},
		{models.StatusReturned, models.StatusApproved, false},
		{models.StatusReturned, models.StatusReturned, true},
	}
	f := newFixture(t)
	admin := f.user(t, models.RoleAdmin)
	owner := f.user(t, models.RoleStudent)
	eq := f.item(t, "Camera", 100)

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to))

			br := f.seed(t, owner, eq, 1, "2025-08-01", "2025-08-02", tc.from)
			out, err := f.lifecycle.Amend(t.Context(), admin, br.ID, AmendPatch{Status: Some(tc.to)})
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.to, out.Status)
				return
			}
			assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))
			got, err := f.repo.FindBorrowRequestByID(t.Context(), br.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.from, got.Status)
		})
	}

	br := f.seed(t, owner, eq, 1, "2025-08-01", "2025-08-02", models.StatusRequested)
	_, err := f.lifecycle.Amend(t.Context(), admin, br.ID, AmendPatch{Status: Some(models.RequestStatus("lost"))})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))
}

func TestAmendClosedRequestWindowIsInvalid(t *testing.T) {
	f := newFixture(t)
	staff := f.user(t, models.RoleStaff)
	owner := f.user(t, models.RoleStudent)
	eq := f.item(t, "Camera", 2)
	br := f.seed(t, owner, eq, 1, "2025-08-01", "2025-08-02", models.StatusRejected)

	_, err := f.lifecycle.Amend(t.Context(), staff, br.ID, AmendPatch{Quantity: Some(2)})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))

	// 只改备注可以
	out, err := f.lifecycle.Amend(t.Context(), staff, br.ID, AmendPatch{Remarks: Some("damaged box")})
	require.NoError(t, err)
	require.NotNil(t, out.Remarks)
	assert.Equal(t, "damaged box", *out.Remarks)
}

func TestAmendAuthorization(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, models.RoleStudent)
	stranger := f.user(t, models.RoleStudent)
	staff := f.user(t, models.RoleStaff)
	eq := f.item(t, "Laptop", 5)
	br := f.seed(t, owner, eq, 1, "2025-05-01", "2025-05-03", models.StatusRequested)

	_, err := f.lifecycle.Amend(t.Context(), stranger, br.ID, AmendPatch{Quantity: Some(2)})
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	_, err = f.lifecycle.Amend(t.Context(), owner, br.ID, AmendPatch{Status: Some(models.StatusApproved)})
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	out, err := f.lifecycle.Amend(t.Context(), owner, br.ID, AmendPatch{Quantity: Some(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Quantity)

	_, err = f.lifecycle.Amend(t.Context(), staff, br.ID, AmendPatch{Status: Some(models.StatusApproved)})
	require.NoError(t, err)

	// 审批后所有者不能再改
	_, err = f.lifecycle.Amend(t.Context(), owner, br.ID, AmendPatch{Quantity: Some(1)})
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	_, err = f.lifecycle.Amend(t.Context(), staff, "00000000-0000-0000-0000-000000000000", AmendPatch{Quantity: Some(1)})
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestAmendNullVersusAbsent(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, models.RoleStudent)
	eq := f.item(t, "Laptop", 5)
	note := "bring charger"
	br, err := f.lifecycle.Submit(t.Context(), owner, SubmitInput{
		EquipmentID: eq.ID, Quantity: 1, BorrowDate: d("2025-05-01"), ReturnDate: d("2025-05-03"), Remarks: &note,
	})
	require.NoError(t, err)

	var keep AmendPatch
	require.NoError(t, json.Unmarshal([]byte(`{"quantity": 2}`), &keep))
	assert.False(t, keep.Remarks.Set)
	out, err := f.lifecycle.Amend(t.Context(), owner, br.ID, keep)
	require.NoError(t, err)
	require.NotNil(t, out.Remarks, "absent remarks stay as they were")
	assert.Equal(t, note, *out.Remarks)

	var clear AmendPatch
	require.NoError(t, json.Unmarshal([]byte(`{"remarks": null}`), &clear))
	assert.True(t, clear.Remarks.Set)
	assert.True(t, clear.Remarks.Null)
	out, err = f.lifecycle.Amend(t.Context(), owner, br.ID, clear)
	require.NoError(t, err)
	assert.Nil(t, out.Remarks)
	got, err := f.repo.FindBorrowRequestByID(t.Context(), br.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Remarks)
	assert.Equal(t, 2, got.Quantity)

	for _, body := range []string{`{"quantity": null}`, `{"borrowDate": null}`, `{"returnDate": null}`} {
		var p AmendPatch
		require.NoError(t, json.Unmarshal([]byte(body), &p))
		_, err := f.lifecycle.Amend(t.Context(), owner, br.ID, p)
		assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err), body)
	}

	// 空补丁原样返回
	same, err := f.lifecycle.Amend(t.Context(), owner, br.ID, AmendPatch{})
	require.NoError(t, err)
	assert.Equal(t, 2, same.Quantity)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, models.RoleStudent)
	staff := f.user(t, models.RoleStaff)
	admin := f.user(t, models.RoleAdmin)
	eq := f.item(t, "Laptop", 1)

	mine := f.seed(t, owner, eq, 1, "2025-05-01", "2025-05-03", models.StatusApproved)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(f.lifecycle.Cancel(t.Context(), staff, mine.ID)))
	require.NoError(t, f.lifecycle.Cancel(t.Context(), owner, mine.ID))
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(f.lifecycle.Cancel(t.Context(), owner, mine.ID)))

	// 删除后容量立即释放
	_, err := f.submit(t, staff, eq, 1, "2025-05-02", "2025-05-02")
	require.NoError(t, err)

	other := f.seed(t, owner, eq, 1, "2025-06-01", "2025-06-03", models.StatusRequested)
	require.NoError(t, f.lifecycle.Cancel(t.Context(), admin, other.ID))
}

func TestAmendRacingCancel(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, models.RoleStudent)
	eq := f.item(t, "Laptop", 5)

	for i := 0; i < 20; i++ {
		br := f.seed(t, owner, eq, 1, "2025-05-01", "2025-05-03", models.StatusRequested)

		var amendErr, cancelErr error
		var g errgroup.Group
		g.Go(func() error {
			_, amendErr = f.lifecycle.Amend(t.Context(), owner, br.ID, AmendPatch{Quantity: Some(2)})
			return nil
		})
		g.Go(func() error {
			cancelErr = f.lifecycle.Cancel(t.Context(), owner, br.ID)
			return nil
		})
		require.NoError(t, g.Wait())

		require.NoError(t, cancelErr)
		if amendErr != nil {
			assert.Equal(t, apperror.KindNotFound, apperror.KindOf(amendErr))
		}
		_, err := f.repo.FindBorrowRequestByID(t.Context(), br.ID)
		assert.Error(t, err)

		// 只有真正写进去的修改才会留下审计记录
		logs, err := f.repo.ListAuditLogs(t.Context(), db.AuditQuery{TargetID: br.ID})
		require.NoError(t, err)
		amended := 0
		for _, l := range logs.Items {
			if l.Action == TopicBorrowAmended {
				amended++
			}
		}
		if amendErr == nil {
			assert.Equal(t, 1, amended)
		} else {
			assert.Equal(t, 0, amended)
		}
	}
}

func TestListAndGetVisibility(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, models.RoleStudent)
	bob := f.user(t, models.RoleStudent)
	staff := f.user(t, models.RoleStaff)
	eq := f.item(t, "Laptop", 5)
	a := f.seed(t, alice, eq, 1, "2025-05-01", "2025-05-03", models.StatusRequested)
	f.seed(t, bob, eq, 1, "2025-05-01", "2025-05-03", models.StatusApproved)

	mine, err := f.lifecycle.List(t.Context(), alice, db.BorrowRequestFilter{UserID: bob.UserID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	all, err := f.lifecycle.List(t.Context(), staff, db.BorrowRequestFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved, err := f.lifecycle.List(t.Context(), staff, db.BorrowRequestFilter{Status: models.StatusApproved})
	require.NoError(t, err)
	assert.Len(t, approved, 1)

	_, err = f.lifecycle.List(t.Context(), staff, db.BorrowRequestFilter{Status: "lost"})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))

	_, err = f.lifecycle.Get(t.Context(), bob, a.ID)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))
	got, err := f.lifecycle.Get(t.Context(), staff, a.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, got.UserID)
}

func TestOverdue(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, models.RoleStudent)
	staff := f.user(t, models.RoleStaff)
	eq := f.item(t, "Laptop", 5)
	late := f.seed(t, owner, eq, 1, "2025-05-01", "2025-05-03", models.StatusApproved)
	f.seed(t, owner, eq, 1, "2025-05-01", "2025-05-03", models.StatusReturned)
	f.seed(t, owner, eq, 1, "2025-05-01", "2025-05-10", models.StatusApproved)

	_, err := f.lifecycle.Overdue(t.Context(), owner, d("2025-05-05"))
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	rs, err := f.lifecycle.Overdue(t.Context(), staff, d("2025-05-05"))
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, late.ID, rs[0].ID)
}

func TestLifecycleEventsAreAudited(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, models.RoleStudent)
	eq := f.item(t, "Laptop", 5)

	br, err := f.submit(t, owner, eq, 1, "2025-05-01", "2025-05-03")
	require.NoError(t, err)
	_, err = f.lifecycle.Amend(t.Context(), owner, br.ID, AmendPatch{Quantity: Some(2)})
	require.NoError(t, err)
	require.NoError(t, f.lifecycle.Cancel(t.Context(), owner, br.ID))

	page, err := f.repo.ListAuditLogs(t.Context(), db.AuditQuery{TargetID: br.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	actions := map[string]bool{}
	for _, l := range page.Items {
		actions[l.Action] = true
		assert.Equal(t, owner.UserID, l.ActorID)
	}
	assert.True(t, actions[TopicBorrowSubmitted])
	assert.True(t, actions[TopicBorrowAmended])
	assert.True(t, actions[TopicBorrowCancelled])

	// 被拒绝的提交不产生审计记录
	_, err = f.submit(t, owner, eq, 9, "2025-05-01", "2025-05-03")
	require.Error(t, err)
	all, err := f.repo.ListAuditLogs(t.Context(), db.AuditQuery{ActorID: owner.UserID})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)
}
