// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package i18n

var dictionaries = map[Language]map[string]string{
	English:    en,
	Vietnamese: vi,
	Spanish:    es,
}

var en = map[string]string{
	// navigation
	"nav.home":        "Home",
	"nav.marketplace": "Marketplace",
	"nav.knowledge":   "Knowledge",
	"nav.settings":    "Settings",
	"nav.chat":        "Chat",
	"nav.help":        "Help",
	"nav.tickets":     "My tickets",
	"nav.all_tickets": "All tickets",
	"nav.footer":      "Nexira AI · your multi-agent assistant",

	// chat
	"chat.welcome":     "Ask Nexira anything. Type /help for commands.",
	"chat.placeholder": "Type a message",
	"chat.thinking":    "Thinking",
	"chat.cancelled":   "Response cancelled",
	"chat.error":       "Something went wrong: %s",
	"chat.new":         "Started a new conversation",
	"chat.cleared":     "Conversation cleared",
	"chat.resumed":     "Resumed %q",
	"chat.goodbye":     "Goodbye",
	"chat.commands":    "/new  start over   /clear  clear the screen   /history  list conversations   /exit  quit",

	// history
	"history.empty":      "No conversations yet",
	"history.offline":    "Showing cached conversations saved %s",
	"history.no_cache":   "No cached conversations",
	"history.deleted":    "Conversation deleted",
	"history.renamed":    "Title updated",
	"history.suggested":  "Suggested title: %s",
	"history.archived":   "Conversation archived",
	"history.unarchived": "Conversation restored",
	"history.no_results": "No conversations match %q",
	"history.exported":   "Exported %d conversation(s) to %s",

	// tickets
	"tickets.empty":          "No tickets match the filters",
	"tickets.created":        "Ticket %s created",
	"tickets.response_sent":  "Response sent",
	"tickets.assigned":       "Ticket assigned to %s",
	"tickets.status_updated": "Status changed to %s",
	"tickets.downloaded":     "Saved %s",
	"tickets.uploading":      "Uploading %d file(s)",
	"tickets.unassigned":     "Unassigned",
	"tickets.responses":      "Responses",
	"tickets.attachments":    "Attachments",

	"ticket.status.open":        "Open",
	"ticket.status.in_progress": "In progress",
	"ticket.status.waiting":     "Waiting",
	"ticket.status.resolved":    "Resolved",
	"ticket.status.closed":      "Closed",

	"ticket.priority.low":    "Low",
	"ticket.priority.medium": "Medium",
	"ticket.priority.high":   "High",
	"ticket.priority.urgent": "Urgent",

	"ticket.category.technical":       "Technical",
	"ticket.category.billing":         "Billing",
	"ticket.category.account":         "Account",
	"ticket.category.feature_request": "Feature request",
	"ticket.category.general":         "General",

	// auth
	"auth.logged_in":     "Logged in as %s",
	"auth.logged_out":    "Logged out",
	"auth.not_logged_in": "Not logged in. Run `nexira login` first.",
	"auth.open_browser":  "Open this URL in your browser to continue:",
	"auth.waiting":       "Waiting for the sign-in to complete",
	"auth.mock":          "Google sign-in is not configured; using a local account",

	// agents
	"agents.title":    "Agents",
	"agents.running":  "Running %s",
	"agents.prompt":   "Describe what you need",
	"agents.result":   "Result",
	"agents.no_value": "%s is required",

	// misc
	"settings.saved":  "Settings saved",
	"knowledge.empty": "The knowledge base is empty",
	"help.intro":      "Nexira AI brings specialised agents, chat and support into your terminal.",
	"error.prefix":    "Error",
}

var vi = map[string]string{
	"nav.home":        "Trang chủ",
	"nav.marketplace": "Chợ trợ lý",
	"nav.knowledge":   "Kiến thức",
	"nav.settings":    "Cài đặt",
	"nav.chat":        "Trò chuyện",
	"nav.help":        "Trợ giúp",
	"nav.tickets":     "Yêu cầu của tôi",
	"nav.all_tickets": "Tất cả yêu cầu",
	"nav.footer":      "Nexira AI · trợ lý đa tác tử của bạn",

	"chat.welcome":     "Hãy hỏi Nexira bất cứ điều gì. Gõ /help để xem lệnh.",
	"chat.placeholder": "Nhập tin nhắn",
	"chat.thinking":    "Đang suy nghĩ",
	"chat.cancelled":   "Đã hủy phản hồi",
	"chat.error":       "Đã xảy ra lỗi: %s",
	"chat.new":         "Đã bắt đầu cuộc trò chuyện mới",
	"chat.cleared":     "Đã xóa cuộc trò chuyện",
	"chat.resumed":     "Tiếp tục %q",
	"chat.goodbye":     "Tạm biệt",
	"chat.commands":    "/new  bắt đầu lại   /clear  xóa màn hình   /history  danh sách   /exit  thoát",

	"history.empty":      "Chưa có cuộc trò chuyện nào",
	"history.offline":    "Đang hiển thị bản lưu tạm lúc %s",
	"history.no_cache":   "Không có bản lưu tạm",
	"history.deleted":    "Đã xóa cuộc trò chuyện",
	"history.renamed":    "Đã cập nhật tiêu đề",
	"history.suggested":  "Tiêu đề gợi ý: %s",
	"history.archived":   "Đã lưu trữ cuộc trò chuyện",
	"history.unarchived": "Đã khôi phục cuộc trò chuyện",
	"history.no_results": "Không có cuộc trò chuyện nào khớp với %q",
	"history.exported":   "Đã xuất %d cuộc trò chuyện vào %s",

	"tickets.empty":          "Không có yêu cầu nào khớp bộ lọc",
	"tickets.created":        "Đã tạo yêu cầu %s",
	"tickets.response_sent":  "Đã gửi phản hồi",
	"tickets.assigned":       "Đã giao yêu cầu cho %s",
	"tickets.status_updated": "Trạng thái đã đổi thành %s",
	"tickets.downloaded":     "Đã lưu %s",
	"tickets.uploading":      "Đang tải lên %d tệp",
	"tickets.unassigned":     "Chưa giao",
	"tickets.responses":      "Phản hồi",
	"tickets.attachments":    "Tệp đính kèm",

	"ticket.status.open":        "Mở",
	"ticket.status.in_progress": "Đang xử lý",
	"ticket.status.waiting":     "Đang chờ",
	"ticket.status.resolved":    "Đã giải quyết",
	"ticket.status.closed":      "Đã đóng",

	"ticket.priority.low":    "Thấp",
	"ticket.priority.medium": "Trung bình",
	"ticket.priority.high":   "Cao",
	"ticket.priority.urgent": "Khẩn cấp",

	"ticket.category.technical":       "Kỹ thuật",
	"ticket.category.billing":         "Thanh toán",
	"ticket.category.account":         "Tài khoản",
	"ticket.category.feature_request": "Đề xuất tính năng",
	"ticket.category.general":         "Chung",

	"auth.logged_in":     "Đã đăng nhập với tên %s",
	"auth.logged_out":    "Đã đăng xuất",
	"auth.not_logged_in": "Bạn chưa đăng nhập. Hãy chạy `nexira login` trước.",
	"auth.open_browser":  "Mở đường dẫn này trong trình duyệt để tiếp tục:",
	"auth.waiting":       "Đang chờ đăng nhập hoàn tất",
	"auth.mock":          "Chưa cấu hình đăng nhập Google; dùng tài khoản cục bộ",

	"agents.title":    "Trợ lý",
	"agents.running":  "Đang chạy %s",
	"agents.prompt":   "Mô tả điều bạn cần",
	"agents.result":   "Kết quả",
	"agents.no_value": "%s là bắt buộc",

	"settings.saved":  "Đã lưu cài đặt",
	"knowledge.empty": "Kho kiến thức đang trống",
	"help.intro":      "Nexira AI đưa các trợ lý chuyên biệt, trò chuyện và hỗ trợ vào terminal của bạn.",
	"error.prefix":    "Lỗi",
}

var es = map[string]string{
	"nav.home":        "Inicio",
	"nav.marketplace": "Mercado",
	"nav.knowledge":   "Conocimiento",
	"nav.settings":    "Ajustes",
	"nav.chat":        "Chat",
	"nav.help":        "Ayuda",
	"nav.tickets":     "Mis tickets",
	"nav.all_tickets": "Todos los tickets",
	"nav.footer":      "Nexira AI · tu asistente multiagente",

	"chat.welcome":     "Pregunta lo que quieras a Nexira. Escribe /help para ver los comandos.",
	"chat.placeholder": "Escribe un mensaje",
	"chat.thinking":    "Pensando",
	"chat.cancelled":   "Respuesta cancelada",
	"chat.error":       "Algo salió mal: %s",
	"chat.new":         "Nueva conversación iniciada",
	"chat.cleared":     "Conversación borrada",
	"chat.resumed":     "Reanudando %q",
	"chat.goodbye":     "Hasta luego",
	"chat.commands":    "/new  empezar de nuevo   /clear  limpiar   /history  conversaciones   /exit  salir",

	"history.empty":      "Todavía no hay conversaciones",
	"history.offline":    "Mostrando conversaciones en caché guardadas %s",
	"history.no_cache":   "No hay conversaciones en caché",
	"history.deleted":    "Conversación eliminada",
	"history.renamed":    "Título actualizado",
	"history.suggested":  "Título sugerido: %s",
	"history.archived":   "Conversación archivada",
	"history.unarchived": "Conversación restaurada",
	"history.no_results": "Ninguna conversación coincide con %q",
	"history.exported":   "Se exportaron %d conversaciones a %s",

	"tickets.empty":          "Ningún ticket coincide con los filtros",
	"tickets.created":        "Ticket %s creado",
	"tickets.response_sent":  "Respuesta enviada",
	"tickets.assigned":       "Ticket asignado a %s",
	"tickets.status_updated": "Estado cambiado a %s",
	"tickets.downloaded":     "Guardado %s",
	"tickets.uploading":      "Subiendo %d archivo(s)",
	"tickets.unassigned":     "Sin asignar",
	"tickets.responses":      "Respuestas",
	"tickets.attachments":    "Adjuntos",

	"ticket.status.open":        "Abierto",
	"ticket.status.in_progress": "En curso",
	"ticket.status.waiting":     "En espera",
	"ticket.status.resolved":    "Resuelto",
	"ticket.status.closed":      "Cerrado",

	"ticket.priority.low":    "Baja",
	"ticket.priority.medium": "Media",
	"ticket.priority.high":   "Alta",
	"ticket.priority.urgent": "Urgente",

	"ticket.category.technical":       "Técnico",
	"ticket.category.billing":         "Facturación",
	"ticket.category.account":         "Cuenta",
	"ticket.category.feature_request": "Solicitud de función",
	"ticket.category.general":         "General",

	"auth.logged_in":     "Sesión iniciada como %s",
	"auth.logged_out":    "Sesión cerrada",
	"auth.not_logged_in": "No has iniciado sesión. Ejecuta `nexira login` primero.",
	"auth.open_browser":  "Abre esta URL en tu navegador para continuar:",
	"auth.waiting":       "Esperando a que termine el inicio de sesión",
	"auth.mock":          "El inicio de sesión con Google no está configurado; se usa una cuenta local",

	"agents.title":    "Agentes",
	"agents.running":  "Ejecutando %s",
	"agents.prompt":   "Describe lo que necesitas",
	"agents.result":   "Resultado",
	"agents.no_value": "%s es obligatorio",

	"settings.saved":  "Ajustes guardados",
	"knowledge.empty": "La base de conocimiento está vacía",
	"help.intro":      "Nexira AI lleva agentes especializados, chat y soporte a tu terminal.",
	"error.prefix":    "Error",
}
