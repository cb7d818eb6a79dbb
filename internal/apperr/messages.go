package apperr

// UserMessage возвращает понятное пользователю описание ошибки
func UserMessage(err error) string {
	switch KindOf(err) {
	case Transient:
		return "Нет соединения с сервером, попробуйте ещё раз"
	case Permission:
		return "Сессия устарела, войдите снова"
	case NotFound:
		return "Объявление не найдено"
	case Validation:
		return "Неверный формат данных"
	case AnchorUnavailable:
		return "Выбранное объявление недоступно для обмена"
	case SessionExpired:
		return "Сессия обмена завершена, выберите объявление заново"
	case LocalStore:
		return "Ошибка локального хранилища"
	default:
		return "Внутренняя ошибка"
	}
}
