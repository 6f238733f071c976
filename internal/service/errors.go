package service

import "errors"

var (
	ErrLeaveNotFound        = errors.New("leave request not found")
	ErrNotificationNotFound = errors.New("notification not found")
)
