package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrAccountBanned      ErrCode = "ACCOUNT_BANNED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden        ErrCode = "FORBIDDEN"
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Test session ──────────────────────────────────────────────────
	ErrSessionNotOwned      ErrCode = "SESSION_NOT_OWNED"
	ErrTestAccessDenied     ErrCode = "TEST_ACCESS_DENIED"
	ErrSessionExpired       ErrCode = "SESSION_EXPIRED"
	ErrTestAlreadyCompleted ErrCode = "TEST_ALREADY_COMPLETED"
	ErrDailyQuotaExceeded   ErrCode = "DAILY_QUOTA_EXCEEDED"
	ErrSessionBusy          ErrCode = "SESSION_BUSY"
	ErrDuplicateAttempt     ErrCode = "DUPLICATE_ATTEMPT"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Username atau kata sandi salah."
	case ErrAccountBanned:
		return "Akun Anda diblokir. Silakan hubungi administrator."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrPermissionDenied:
		return "Izin ditolak."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Test session ──────────────────────────────────────────────────
	case ErrSessionNotOwned:
		return "Sesi ini bukan milik Anda."
	case ErrTestAccessDenied:
		return "Anda tidak memiliki akses ke tes ini."
	case ErrSessionExpired:
		return "Waktu sesi tes telah habis."
	case ErrTestAlreadyCompleted:
		return "Tes ini sudah diselesaikan."
	case ErrDailyQuotaExceeded:
		return "Batas tes harian telah tercapai."
	case ErrSessionBusy:
		return "Sesi sedang diproses. Silakan coba lagi."
	case ErrDuplicateAttempt:
		return "Hasil tes tidak dapat disimpan karena konflik. Silakan coba lagi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
