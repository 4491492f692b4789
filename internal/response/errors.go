package response

// ErrCode is a typed error code enum for consistent API error identification.
// The exam taker matches on these codes, so they are part of the wire contract.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden          ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly  ErrCode = "STUDENT_ACCESS_ONLY"
	ErrProctorAccessOnly  ErrCode = "PROCTOR_ACCESS_ONLY"
	ErrNotSubmissionOwner ErrCode = "NOT_SUBMISSION_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotAvailable        ErrCode = "EXAM_NOT_AVAILABLE"
	ErrInvalidExamPassword     ErrCode = "INVALID_EXAM_PASSWORD"
	ErrNoQuestions             ErrCode = "NO_QUESTIONS"
	ErrQuestionNotFound        ErrCode = "QUESTION_NOT_FOUND"
	ErrQuestionNotInExam       ErrCode = "QUESTION_NOT_IN_EXAM"
	ErrSubmissionNotFound      ErrCode = "SUBMISSION_NOT_FOUND"
	ErrSubmissionAlreadyFinal  ErrCode = "SUBMISSION_ALREADY_FINALIZED"
	ErrSubmissionTimeExhausted ErrCode = "SUBMISSION_TIME_EXHAUSTED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrProctorAccessOnly:
		return "Sumber daya ini terbatas untuk pengawas ujian."
	case ErrNotSubmissionOwner:
		return "Lembar jawaban ini bukan milik Anda."

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

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrInvalidExamPassword:
		return "Kata sandi ujian tidak valid."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."
	case ErrQuestionNotFound:
		return "Nomor soal tidak ditemukan."
	case ErrQuestionNotInExam:
		return "Soal ini bukan bagian dari ujian."
	case ErrSubmissionNotFound:
		return "Lembar jawaban tidak ditemukan."
	case ErrSubmissionAlreadyFinal:
		return "Ujian ini sudah dikumpulkan."
	case ErrSubmissionTimeExhausted:
		return "Waktu ujian telah habis."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
