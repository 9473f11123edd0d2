package models

import "time"

const BorrowRequestTable = "portal_borrow_requests"

type RequestStatus string

const (
	StatusRequested RequestStatus = "requested"
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusReturned  RequestStatus = "returned"
)

// ActiveStatuses 是占用容量的状态；rejected / returned 不再计入
var ActiveStatuses = []RequestStatus{StatusRequested, StatusPending, StatusApproved}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusPending, StatusApproved, StatusRejected, StatusReturned:
		return true
	}
	return false
}

func (s RequestStatus) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// BorrowRequest 借用申请。BorrowDate/ReturnDate 都是日历日（UTC 零点），闭区间。
type BorrowRequest struct {
	ID          string        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string        `gorm:"type:uuid;not null;index" json:"userId"`
	EquipmentID string        `gorm:"type:uuid;not null;index:idx_borrow_window,priority:1" json:"equipmentId"`
	Quantity    int           `gorm:"not null;check:chk_borrow_quantity,quantity > 0" json:"quantity"`
	BorrowDate  time.Time     `gorm:"type:date;not null;index:idx_borrow_window,priority:2" json:"borrowDate"`
	ReturnDate  time.Time     `gorm:"type:date;not null;index:idx_borrow_window,priority:3;check:chk_borrow_window,borrow_date <= return_date" json:"returnDate"`
	Status      RequestStatus `gorm:"size:20;not null;default:'requested';index" json:"status"`
	Remarks     *string       `gorm:"size:255" json:"remarks,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`

	Equipment *Equipment `gorm:"foreignKey:EquipmentID" json:"equipment,omitempty"`
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (BorrowRequest) TableName() string { return BorrowRequestTable }

// Overlaps 闭区间相交：b1 <= r2 && b2 <= r1（同一天也算重叠）
func (br *BorrowRequest) Overlaps(borrow, ret time.Time) bool {
	return !br.BorrowDate.After(ret) && !borrow.After(br.ReturnDate)
}
