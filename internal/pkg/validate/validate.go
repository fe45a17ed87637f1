package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// 自定义校验标签
const (
	PhoneTag    = "ke_phone"
	NotBlankTag = "notblank"
)

var ErrInvalidPhone = errors.New("phone must be a Kenyan mobile number like 0712345678 or 254712345678")

var (
	phoneCleaner = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	localPhone   = regexp.MustCompile(`^0([17]\d{8})$`)
	intlPhone    = regexp.MustCompile(`^\+?254([17]\d{8})$`)
	barePhone    = regexp.MustCompile(`^([17]\d{8})$`)
)

// NormalizePhone 将肯尼亚手机号规范为 2547XXXXXXXX / 2541XXXXXXXX
func NormalizePhone(raw string) (string, error) {
	s := phoneCleaner.Replace(strings.TrimSpace(raw))
	for _, re := range []*regexp.Regexp{localPhone, intlPhone, barePhone} {
		if m := re.FindStringSubmatch(s); m != nil {
			return "254" + m[1], nil
		}
	}
	return "", ErrInvalidPhone
}

var translator ut.Translator

// Register 在 gin 的校验引擎上注册自定义标签和英文错误信息
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}
	return Setup(v)
}

// Setup 为给定的校验器注册自定义标签
func Setup(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	if err := v.RegisterValidation(PhoneTag, phoneValidation); err != nil {
		return err
	}
	if err := v.RegisterValidation(NotBlankTag, notBlankValidation); err != nil {
		return err
	}

	english := en.New()
	uni := ut.New(english, english)
	translator, _ = uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(v, translator); err != nil {
		return err
	}

	noop := func(ut.Translator) error { return nil }
	for _, tag := range []string{PhoneTag, NotBlankTag} {
		if err := v.RegisterTranslation(tag, translator, noop, translateCustom); err != nil {
			return err
		}
	}
	return nil
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case PhoneTag:
		return fe.Field() + " must be a Kenyan mobile number"
	case NotBlankTag:
		return fe.Field() + " cannot be blank"
	}
	return fe.Error()
}

func phoneValidation(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := NormalizePhone(s)
	return err == nil
}

func notBlankValidation(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	return ok && strings.TrimSpace(s) != ""
}

// Message 把绑定错误转换为可读的提示
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || translator == nil {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(translator))
	}
	return strings.Join(msgs, "; ")
}
