package model

import "errors"

// Ошибки предметной области. Тексты ошибок возвращаются клиенту как есть.
var (
	// ErrValidation возвращается при отсутствующих или некорректных входных данных.
	ErrValidation = errors.New("invalid input")
	// ErrDuplicateEmail возвращается при регистрации с уже занятым адресом.
	ErrDuplicateEmail = errors.New("user already exists")
	// ErrInvalidCredentials возвращается при неверной паре адрес/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited возвращается при повторном запросе кода раньше допустимого интервала.
	ErrRateLimited = errors.New("please wait before requesting another code")
	// ErrExpired возвращается для просроченного кода или токена.
	ErrExpired = errors.New("code has expired")
	// ErrMismatch возвращается при неверном одноразовом коде.
	ErrMismatch = errors.New("invalid code")
	// ErrNameRequired возвращается, если для новой учётной записи не указано имя.
	ErrNameRequired = errors.New("name is required for registration")
	// ErrUnauthorized возвращается при обращении к чужому заказу.
	ErrUnauthorized = errors.New("user not authorized")
	// ErrForbidden возвращается при обращении к административной операции без прав.
	ErrForbidden = errors.New("admin role required")
	// ErrNotFound возвращается, если запрошенная запись отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrInvalidToken возвращается для повреждённого или неподписанного токена сессии.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidReference возвращается для слишком короткого номера транзакции UPI.
	ErrInvalidReference = errors.New("invalid UTR: enter the transaction reference from your payment app")
	// ErrIdentityConflict возвращается, если адрес уже связан с другой внешней учётной записью.
	ErrIdentityConflict = errors.New("email is linked to another external account")
	// ErrStorage возвращается при недоступности хранилища.
	ErrStorage = errors.New("storage unavailable")
)
