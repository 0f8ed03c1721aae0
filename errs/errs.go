package errs

import "errors"

var (
	ErrNotImplemented     = errors.New("E0000: not implemented")
	ErrInvalidArgument    = errors.New("E0001: invalid argument")
	ErrInvalidID          = errors.New("E0002: invalid ID")
	ErrDatabase           = errors.New("E0004: database error")
	ErrJWT                = errors.New("E0006: JWT failure")
	ErrAlreadyExists      = errors.New("E0010: already exists")
	ErrTokenExpired       = errors.New("E0011: token expired")
	ErrUnauthorized       = errors.New("E0012: unauthorized")
	ErrNotFound           = errors.New("E0014: not found")
	ErrQueue              = errors.New("E0020: queue error")
	ErrCapacityExceeded   = errors.New("E0021: capacity exceeded")
	ErrConflict           = errors.New("E0022: concurrent modification")
	ErrAlreadyInvited     = errors.New("E0023: invitation already sent")
	ErrSelfInvite         = errors.New("E0024: cannot invite yourself")
	ErrCooldown           = errors.New("E0025: please wait before trying again")
	ErrStatusRequired     = errors.New("E0026: status and duration are required")
	ErrEmbedding          = errors.New("E0027: embedding failure")
	ErrUpload             = errors.New("E0028: upload url failure")
	ErrMissingUploadField = errors.New("E0029: fileName and fileType are required")
	ErrForbidden          = errors.New("E0030: acting for another user")
)
