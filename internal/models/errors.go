package models

import "errors"

// Intent validation failures. They are returned before any state is touched.
var (
	ErrInvalidPassword     = errors.New("invalid room password")
	ErrPermissionDenied    = errors.New("playlist item is not owned by the user")
	ErrNotFound            = errors.New("playlist item does not exist in the room")
	ErrAlreadyPlayed       = errors.New("playlist item has already been played")
	ErrCannotRemoveCurrent = errors.New("the room's current item can not be removed")
	ErrNotHost             = errors.New("user is not the room host")

	ErrNotJoined           = errors.New("not joined to a room")
	ErrAlreadyJoined       = errors.New("already joined to a room")
	ErrUserNotInRoom       = errors.New("user is not in the room")
	ErrUserAlreadyInRoom   = errors.New("user is already in the room")
	ErrInvalidState        = errors.New("operation not allowed in the current room state")
	ErrNoReadyUsers        = errors.New("no users are ready")
	ErrInvalidMatchRequest = errors.New("match request not supported by the room's match type")
	ErrInvalidSettings     = errors.New("invalid room settings")
)
