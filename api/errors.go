package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mortasa/storefront/access"
	"github.com/mortasa/storefront/storage"
)

// Client-facing messages. The admin panel shows them verbatim.
const (
	msgUnauthorized      = "غير مصرح"
	msgSessionExpired    = "انتهت صلاحية الجلسة"
	msgRevoked           = "تم إلغاء صلاحيتك من قبل المدير الرئيسي"
	msgMasterRequired    = "صلاحية المدير الرئيسي فقط"
	msgMissingLoginCode  = "الرجاء إدخال رمز الدخول"
	msgInvalidCode       = "رمز الدخول غير صحيح"
	msgMissingCodeFields = "الرجاء إدخال الرمز والاسم"
	msgDuplicateCode     = "هذا الرمز مستخدم بالفعل"
	msgCreateCodeFailed  = "حدث خطأ أثناء إضافة الرمز"
	msgCodeNotFound      = "الرمز غير موجود"
	msgMasterProtected   = "لا يمكن حذف الرمز الرئيسي"
	msgRateLimited       = "محاولات كثيرة، الرجاء المحاولة لاحقاً"

	msgProductNotFound = "المنتج غير موجود"
	msgNothingToUpdate = "لا توجد بيانات للتحديث"
	msgProductFields   = "الرجاء ملء جميع الحقول المطلوبة"
	msgProductInvalid  = "بيانات المنتج غير صالحة"
	msgMessageRequired = "الرجاء إدخال نص الرسالة"
	msgNoImage         = "لم يتم رفع أي صورة"
	msgUnsupportedType = "نوع الملف غير مدعوم"
	msgFileTooLarge    = "حجم الملف كبير جداً"
	msgTooManyFiles    = "عدد الصور أكبر من المسموح"
	msgInvalidImageURL = "رابط الصورة غير صالح"
	msgInvalidBody     = "بيانات الطلب غير صالحة"
	msgInternal        = "حدث خطأ في الخادم"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError translates an error from the access service into a response.
// Anything that is not a known caller error is logged and reported as 500
// without detail.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	a.mapErrorWith(w, r, err, msgInternal)
}

func (a *API) mapErrorWith(w http.ResponseWriter, r *http.Request, err error, internalMsg string) {
	switch {
	case errors.Is(err, access.ErrRevoked):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: msgRevoked, Revoked: true})
	case errors.Is(err, access.ErrNoCredentials):
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, access.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, msgSessionExpired)
	case errors.Is(err, access.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, msgInvalidCode)
	case errors.Is(err, access.ErrMissingCode):
		writeError(w, http.StatusBadRequest, msgMissingLoginCode)
	case errors.Is(err, access.ErrMissingFields):
		writeError(w, http.StatusBadRequest, msgMissingCodeFields)
	case errors.Is(err, access.ErrMasterRequired):
		writeError(w, http.StatusForbidden, msgMasterRequired)
	case errors.Is(err, access.ErrMasterProtected):
		writeError(w, http.StatusForbidden, msgMasterProtected)
	case errors.Is(err, access.ErrCodeNotFound):
		writeError(w, http.StatusNotFound, msgCodeNotFound)
	case errors.Is(err, access.ErrDuplicateCode):
		writeError(w, http.StatusConflict, msgDuplicateCode)
	default:
		a.serverError(w, r, err, internalMsg)
	}
}

// mapProductError translates a ProductStore error.
func (a *API) mapProductError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, msgProductNotFound)
	case errors.Is(err, storage.ErrProductNameRequired),
		errors.Is(err, storage.ErrProductCategoryRequired),
		errors.Is(err, storage.ErrProductImageRequired),
		errors.Is(err, storage.ErrProductDescriptionRequired):
		writeError(w, http.StatusBadRequest, msgProductFields)
	case errors.Is(err, storage.ErrProductPriceInvalid),
		errors.Is(err, storage.ErrProductRatingInvalid):
		writeError(w, http.StatusBadRequest, msgProductInvalid)
	default:
		a.serverError(w, r, err, msgInternal)
	}
}

func (a *API) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	a.logger.LogAttrs(r.Context(), slog.LevelError, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, msg)
}
