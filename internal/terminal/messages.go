package terminal

const msgAskUsername = `Как вас зовут?`

const msgWelcomeBack = `С возвращением, %s!`

const msgResumePrompt = `Найден незавершенный квиз: вопрос %d из %d, отвечено %d, осталось %s.
r — продолжить, n — начать заново, l — сменить пользователя`

const msgLoading = `Загружаем вопросы...`

const msgFetchFailed = `Не удалось загрузить вопросы: %v
Повторить? (y/n)`

const msgQuestionHeader = `Вопрос %d/%d · осталось %s · отвечено %d`

const msgActiveHelp = `Ответ (%s), p — пауза, e — завершить, q — выйти`

const msgPaused = `Пауза. Осталось %s.
r — продолжить, e — завершить, q — выйти`

const msgConfirmEnd = `Завершить квиз досрочно? Вопросы без ответа не засчитаются. (y/n)`

const msgUnknownCommand = `Не понимаю команду %q.`

const msgSaved = `Прогресс сохранен, квиз можно продолжить позже.`

const msgResultHeader = `Квиз завершен!`

const msgResultScore = `Правильных ответов: %d из %d (%d%%)
Отвечено: %d, неверно: %d, время: %s`

const msgResultLine = `%d. %s
   ваш ответ: %s · правильный: %s %s`

const msgNoAnswer = `—`

const msgCSVSaved = `Разбор сохранен в %s`

const msgAfterResult = `n — новый квиз, l — сменить пользователя, q — выход`
