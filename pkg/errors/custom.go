package errors

/*
	内置通用错误码，业务包从 2000 起自定义
*/

var (
	// ErrInternal 内部错误
	ErrInternal = New(1000, "internal error")
	// ErrInvalidArgument 参数错误
	ErrInvalidArgument = New(1001, "invalid argument")
	// ErrNotFound 资源不存在
	ErrNotFound = New(1004, "resource not found")
	// ErrConflict 资源冲突
	ErrConflict = New(1009, "resource conflict")
)
