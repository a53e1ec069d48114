package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenInvalid ErrCode = "TOKEN_INVALID"
	ErrTokenExpired ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrNotSessionOwner ErrCode = "NOT_SESSION_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"

	// ─── Mock test ─────────────────────────────────────────────────────
	ErrInvalidTestKind    ErrCode = "INVALID_TEST_KIND"
	ErrInvalidPhase       ErrCode = "INVALID_PHASE"
	ErrAlreadyAnswered    ErrCode = "ALREADY_ANSWERED"
	ErrNoCurrentQuestion  ErrCode = "NO_CURRENT_QUESTION"
	ErrInvalidOption      ErrCode = "INVALID_OPTION"
	ErrWrongAnswerKind    ErrCode = "WRONG_ANSWER_KIND"
	ErrBankUnavailable    ErrCode = "QUESTION_BANK_UNAVAILABLE"
	ErrLoadCancelled      ErrCode = "LOAD_CANCELLED"
	ErrResultNotAvailable ErrCode = "RESULT_NOT_AVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrNotSessionOwner:
		return "Sesi tes ini milik pengguna lain."

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
	case ErrSessionNotFound:
		return "Sesi tes tidak ditemukan atau sudah ditutup."

	// ─── Mock test ─────────────────────────────────────────────────────
	case ErrInvalidTestKind:
		return "Jenis tes tidak dikenal."
	case ErrInvalidPhase:
		return "Tindakan ini tidak diperbolehkan pada status sesi saat ini."
	case ErrAlreadyAnswered:
		return "Pertanyaan ini sudah dijawab."
	case ErrNoCurrentQuestion:
		return "Tidak ada pertanyaan aktif."
	case ErrInvalidOption:
		return "Pilihan jawaban tidak valid."
	case ErrWrongAnswerKind:
		return "Jenis jawaban tidak sesuai dengan jenis tes."
	case ErrBankUnavailable:
		return "Bank soal tidak tersedia. Silakan coba lagi."
	case ErrLoadCancelled:
		return "Pemuatan soal dibatalkan."
	case ErrResultNotAvailable:
		return "Hasil tes belum tersedia."

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
