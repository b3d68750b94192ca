package model

type DepartmentStatus string

const (
	DepartmentStatusActive   DepartmentStatus = "ACTIVE"
	DepartmentStatusInactive DepartmentStatus = "INACTIVE"
)

// Department owns a consultation queue. Code prefixes every token number.
type Department struct {
	Base
	Code   string           `db:"code" json:"code"`
	Name   string           `db:"name" json:"name"`
	Status DepartmentStatus `db:"status" json:"status"`
}
